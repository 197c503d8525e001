package wikidate

import (
	"regexp"
	"strconv"
	"strings"
)

// FrenchMonths maps lower-cased French month names to month numbers,
// as they appear in fr-wiki signatures.
var FrenchMonths = map[string]int{
	"janvier":   1,
	"février":   2,
	"fevrier":   2,
	"mars":      3,
	"avril":     4,
	"mai":       5,
	"juin":      6,
	"juillet":   7,
	"août":      8,
	"aout":      8,
	"septembre": 9,
	"octobre":   10,
	"novembre":  11,
	"décembre":  12,
	"decembre":  12,
}

// FrenchMonthName returns the fr-wiki spelling of month (1-12), or ""
// for anything else.
func FrenchMonthName(month int) string {
	names := [...]string{"janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre"}
	if month < 1 || month > 12 {
		return ""
	}
	return names[month-1]
}

// Matches "1 janvier 2020 à 12:34 (CET)" with an optional "er" ordinal
// suffix on the day and an optional timezone.
var signatureDateRegexp = regexp.MustCompile(
	`(\d{1,2})(?:er)?\s+(\p{L}+)\s+(\d{4})\s+à\s+(\d{1,2}):(\d{2})(?:\s+\((CES?T|UTC)\))?`)

// ParseSignatureDate extracts the latest signature date found in text,
// using the fr-wiki timestamp convention. Returns the null date when no
// signature is present. CET and CEST offsets are converted back to UTC.
func ParseSignatureDate(text string) Date {
	latest := NullDate
	for _, m := range signatureDateRegexp.FindAllStringSubmatch(text, -1) {
		day, _ := strconv.Atoi(m[1])
		month, ok := FrenchMonths[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		d, err := NewDate(year, month, day, hour, minute, 0)
		if err != nil {
			continue
		}
		switch m[6] {
		case "CET":
			d = d.Add(-Hour)
		case "CEST":
			d = d.Add(-2 * Hour)
		}
		latest = Max(latest, d)
	}
	return latest
}
