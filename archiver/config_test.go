package archiver

import (
	"strings"
	"testing"

	"github.com/orlodrim/wikibot/wikicode"
)

func parseConfigText(t *testing.T, text string, newestFirst bool) (*Config, error) {
	t.Helper()
	return ParseConfig(wikicode.Parse(text), newestFirst)
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfigText(t, `{{Archivage par bot
|algo=old(15d)
|archive=/Archive %(counter)d
|counter=3
|minthreadsleft=4
|minthreadstoarchive=1
|maxarchivesize=200k
|archiveheader={{Entête d'archive}}
}}`, false)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Algorithms) != 1 || cfg.Algorithms[0].Name != "old" {
		t.Errorf("algorithms = %+v", cfg.Algorithms)
	}
	if cfg.ArchivePattern != "/Archive %(counter)d" {
		t.Errorf("pattern = %q", cfg.ArchivePattern)
	}
	if cfg.Counter != 3 || !cfg.HasCounter {
		t.Errorf("counter = %d (has %v)", cfg.Counter, cfg.HasCounter)
	}
	if cfg.MinThreadsLeft != 4 || cfg.MinThreadsToArchive != 1 {
		t.Errorf("thread safeguards = %d/%d", cfg.MinThreadsLeft, cfg.MinThreadsToArchive)
	}
	if cfg.MaxArchiveSizeKB != 200 {
		t.Errorf("maxarchivesize = %d", cfg.MaxArchiveSizeKB)
	}
	if cfg.ArchiveHeader != "{{Entête d'archive}}" {
		t.Errorf("archiveheader = %q", cfg.ArchiveHeader)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfigText(t, "{{Archivage par bot|algo=old(7d)|archive=/Archives}}", false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MinThreadsLeft != 5 || cfg.MinThreadsToArchive != 2 || cfg.MaxArchiveSizeKB != 1950 {
		t.Errorf("defaults = %d/%d/%d", cfg.MinThreadsLeft, cfg.MinThreadsToArchive, cfg.MaxArchiveSizeKB)
	}
	if cfg.HasCounter {
		t.Error("absent counter reported as present")
	}

	// Tracked pages relax the safeguards.
	cfg, err = parseConfigText(t, "{{Archivage par bot|algo=old(7d)|archive=/Archives}}", true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MinThreadsLeft != 1 || cfg.MinThreadsToArchive != 1 {
		t.Errorf("tracked defaults = %d/%d", cfg.MinThreadsLeft, cfg.MinThreadsToArchive)
	}
}

func TestParseConfigSizeCap(t *testing.T) {
	cfg, err := parseConfigText(t, "{{Archivage par bot|algo=old(7d)|archive=/A|maxarchivesize=5000k}}", false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxArchiveSizeKB != 1950 {
		t.Errorf("oversized maxarchivesize not capped: %d", cfg.MaxArchiveSizeKB)
	}
}

func TestParseConfigErrors(t *testing.T) {
	cases := map[string]string{
		"no template":       "just text",
		"no algo":           "{{Archivage par bot|archive=/A}}",
		"no archive":        "{{Archivage par bot|algo=old(7d)}}",
		"bad algo":          "{{Archivage par bot|algo=bogus(7d)|archive=/A}}",
		"bad counter":       "{{Archivage par bot|algo=old(7d)|archive=/A|counter=x}}",
		"bad size":          "{{Archivage par bot|algo=old(7d)|archive=/A|maxarchivesize=12}}",
		"zero minthreads":   "{{Archivage par bot|algo=old(7d)|archive=/A|minthreadstoarchive=0}}",
		"negative leftover": "{{Archivage par bot|algo=old(7d)|archive=/A|minthreadsleft=-1}}",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseConfigText(t, text, false); err == nil {
				t.Errorf("ParseConfig accepted %q", text)
			}
		})
	}
}

func TestWriteCounterToSource(t *testing.T) {
	source := "Intro.\n{{Archivage par bot|algo=old(7d)|archive=/A %(counter)d|counter=3}}\n== S ==\ntext\n"
	got := writeCounterToSource(source, 4)
	if !strings.Contains(got, "counter=4") || strings.Contains(got, "counter=3") {
		t.Errorf("counter not updated: %q", got)
	}
	// Everything else is untouched.
	if !strings.Contains(got, "Intro.\n") || !strings.Contains(got, "== S ==\ntext\n") {
		t.Errorf("unrelated text changed: %q", got)
	}
}
