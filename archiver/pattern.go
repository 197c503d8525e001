package archiver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orlodrim/wikibot/wikidate"
)

// ExpandArchivePattern replaces the %(...)d / %(...)s placeholders of
// an archive parameter. A pattern starting with "/" names a subpage of
// the source talk page.
func ExpandArchivePattern(pattern, sourceTitle string, counter int, date wikidate.Date) (string, error) {
	expanded := pattern
	// %(month)02d must go before %(month)d, which is its prefix.
	replacements := []struct{ placeholder, value string }{
		{"%(counter)d", strconv.Itoa(counter)},
		{"%(year)d", strconv.Itoa(date.Year())},
		{"%(month)02d", fmt.Sprintf("%02d", date.Month())},
		{"%(month)d", strconv.Itoa(date.Month())},
		{"%(monthname)s", wikidate.FrenchMonthName(date.Month())},
		{"%(quarter)d", strconv.Itoa((date.Month()-1)/3 + 1)},
	}
	for _, r := range replacements {
		expanded = strings.ReplaceAll(expanded, r.placeholder, r.value)
	}
	if i := strings.Index(expanded, "%("); i >= 0 {
		end := i + 20
		if end > len(expanded) {
			end = len(expanded)
		}
		return "", fmt.Errorf("unknown placeholder in archive pattern at %q", expanded[i:end])
	}
	if strings.HasPrefix(expanded, "/") {
		expanded = sourceTitle + expanded
	}
	return expanded, nil
}

// patternUsesCounter reports whether expanding the pattern depends on
// the counter value.
func patternUsesCounter(pattern string) bool {
	return strings.Contains(pattern, "%(counter)d")
}
