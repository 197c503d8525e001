package archiver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/orlodrim/wikibot/wikicode"
	"github.com/orlodrim/wikibot/wikidate"
)

// Action is what an algorithm decides for a thread.
type Action int

const (
	Keep Action = iota
	Archive
	Erase
)

func (a Action) String() string {
	switch a {
	case Archive:
		return "archive"
	case Erase:
		return "erase"
	}
	return "keep"
}

// AlgoSpec is one entry of the algo= chain: an algorithm name and the
// minimum age threads must reach before it applies.
type AlgoSpec struct {
	Name   string
	MaxAge wikidate.DateDiff
}

var algoEntryRegexp = regexp.MustCompile(`^([a-zA-Z+]+)(?:\((\d+)d\))?$`)

// knownAlgorithms are the built-in algorithm names.
var knownAlgorithms = map[string]bool{
	"old":             true,
	"oldtitle":        true,
	"eraseOld":        true,
	"eraseNewsletters": true,
	"fdn":             true,
	"checked+old":     true,
}

// ParseAlgoChain parses an "old(15d), oldtitle(180d)" style list into
// ordered algorithm specs. An omitted age means immediate.
func ParseAlgoChain(s string) ([]AlgoSpec, error) {
	var specs []AlgoSpec
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		m := algoEntryRegexp.FindStringSubmatch(entry)
		if m == nil {
			return nil, fmt.Errorf("malformed algorithm entry %q", entry)
		}
		if !knownAlgorithms[m[1]] {
			return nil, fmt.Errorf("unknown algorithm %q", m[1])
		}
		spec := AlgoSpec{Name: m[1]}
		if m[2] != "" {
			days, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, fmt.Errorf("malformed age in %q: %w", entry, err)
			}
			spec.MaxAge = wikidate.Days(days)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("empty algorithm chain")
	}
	return specs, nil
}

// Evaluate returns the algorithm's action for the thread and, for
// title-dated threads, the date forced by the title.
func (a AlgoSpec) Evaluate(t *Thread) (Action, wikidate.Date) {
	switch a.Name {
	case "old":
		return Archive, wikidate.NullDate
	case "eraseOld":
		return Erase, wikidate.NullDate
	case "oldtitle":
		if d := titleDate(t.Title); !d.IsNull() {
			return Archive, d
		}
		return Keep, wikidate.NullDate
	case "eraseNewsletters":
		if isNewsletter(t.Text) {
			return Erase, wikidate.NullDate
		}
		return Keep, wikidate.NullDate
	case "fdn":
		if hasClosedWelcomeResponse(t.Text) {
			return Archive, wikidate.NullDate
		}
		return Keep, wikidate.NullDate
	case "checked+old":
		if titleHasCheckmark(t.Title) {
			return Archive, wikidate.NullDate
		}
		return Keep, wikidate.NullDate
	}
	return Keep, wikidate.NullDate
}

// titleDateRegexp matches a bare French date such as "12 août 2026".
var titleDateRegexp = regexp.MustCompile(`(\d{1,2})(?:er)?\s+(\p{L}+)\s+(\d{4})`)

// titleDate extracts a date carried by a thread title; the date acts
// as a floor for the thread's age.
func titleDate(title string) wikidate.Date {
	for _, m := range titleDateRegexp.FindAllStringSubmatch(title, -1) {
		day, _ := strconv.Atoi(m[1])
		month, ok := wikidate.FrenchMonths[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		year, _ := strconv.Atoi(m[3])
		if d, err := wikidate.NewDate(year, month, day, 0, 0, 0); err == nil {
			return d
		}
	}
	return wikidate.NullDate
}

// Newsletter threads delivered by MassMessage carry a sender comment;
// the local newsletters transclude a known template.
var newsletterTemplates = map[string]bool{
	"raw/pdd":         true,
	"wikimag message": true,
}

func isNewsletter(text string) bool {
	if strings.Contains(text, "<!-- Message envoyé par User:") ||
		strings.Contains(text, "<!-- Message sent by User:") {
		return true
	}
	return pageHasTemplate(text, func(name string) bool {
		return newsletterTemplates[strings.ToLower(name)]
	})
}

// hasClosedWelcomeResponse recognizes a "Forum des nouveaux" response
// template whose state parameter marks the question as handled.
func hasClosedWelcomeResponse(text string) bool {
	closed := false
	tree := wikicode.Parse(text)
	it := wikicode.NewIterator(tree, wikicode.PrefixDFS, wikicode.TemplateType)
	for n := it.Next(); n != nil; n = it.Next() {
		tmpl := n.(*wikicode.Template)
		if !strings.Contains(strings.ToLower(tmpl.Name()), "forum des nouveaux") {
			continue
		}
		fields := tmpl.ParsedFields(wikicode.Trim | wikicode.StripComments)
		for _, param := range []string{"statut", "état", "etat"} {
			switch strings.ToLower(fields.Value(param)) {
			case "fait", "oui", "clos", "résolu", "traité":
				closed = true
			}
		}
	}
	return closed
}

// checkmarkTemplates mark a thread as handled when transcluded in its
// title.
var checkmarkTemplates = map[string]bool{
	"fait": true,
	"ok":   true,
	"oui":  true,
	"déjà fait": true,
	"non":  true,
}

func titleHasCheckmark(title string) bool {
	return pageHasTemplate(title, func(name string) bool {
		return checkmarkTemplates[strings.ToLower(name)]
	})
}

// pageHasTemplate parses text and reports whether any transcluded
// template name matches.
func pageHasTemplate(text string, match func(name string) bool) bool {
	tree := wikicode.Parse(text)
	it := wikicode.NewIterator(tree, wikicode.PrefixDFS, wikicode.TemplateType)
	for n := it.Next(); n != nil; n = it.Next() {
		if match(n.(*wikicode.Template).Name()) {
			return true
		}
	}
	return false
}
