package archiver

import (
	"testing"

	"github.com/orlodrim/wikibot/wikidate"
)

func TestExpandArchivePattern(t *testing.T) {
	date := wikidate.MustDate(2026, 8, 24, 0, 0, 0)
	cases := []struct {
		pattern string
		want    string
	}{
		{"/Archive %(counter)d", "Discussion:Page/Archive 7"},
		{"/Archives/%(year)d", "Discussion:Page/Archives/2026"},
		{"/%(year)d-%(month)02d", "Discussion:Page/2026-08"},
		{"/%(monthname)s %(year)d", "Discussion:Page/août 2026"},
		{"/T%(quarter)d %(year)d", "Discussion:Page/T3 2026"},
		{"Discussion:Ailleurs/Archive %(counter)d", "Discussion:Ailleurs/Archive 7"},
		{"/%(month)d", "Discussion:Page/8"},
	}
	for _, c := range cases {
		got, err := ExpandArchivePattern(c.pattern, "Discussion:Page", 7, date)
		if err != nil {
			t.Errorf("ExpandArchivePattern(%q): %v", c.pattern, err)
			continue
		}
		if got != c.want {
			t.Errorf("ExpandArchivePattern(%q) = %q, want %q", c.pattern, got, c.want)
		}
	}
}

func TestExpandArchivePatternQuarters(t *testing.T) {
	for month, quarter := range map[int]string{1: "1", 3: "1", 4: "2", 12: "4"} {
		date := wikidate.MustDate(2026, month, 1, 0, 0, 0)
		got, err := ExpandArchivePattern("/%(quarter)d", "P", 0, date)
		if err != nil {
			t.Fatal(err)
		}
		if got != "P/"+quarter {
			t.Errorf("month %d quarter = %q, want %q", month, got, "P/"+quarter)
		}
	}
}

func TestExpandArchivePatternUnknownPlaceholder(t *testing.T) {
	if _, err := ExpandArchivePattern("/%(week)d", "P", 0, wikidate.NullDate); err == nil {
		t.Error("unknown placeholder accepted")
	}
}
