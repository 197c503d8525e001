package archiver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/orlodrim/wikibot/wikicode"
)

// configTemplateName is the template carrying the archiving
// configuration on the talk page itself.
const configTemplateName = "Archivage par bot"

// Limit on the maxarchivesize parameter, in kilobytes. Larger values
// would produce archives the wiki itself refuses to render well.
const maxArchiveSizeCapKB = 1950

// Config is the per-page archiving configuration read from the
// {{Archivage par bot}} template.
type Config struct {
	// Algorithms are applied to each thread in order; the first one
	// that matches decides the thread's fate.
	Algorithms []AlgoSpec
	// ArchivePattern is the archive page name with %(...)s placeholders,
	// relative to the talk page when it starts with "/".
	ArchivePattern string
	// ArchiveHeader is prepended to newly created archive pages.
	ArchiveHeader string
	// Counter is the current value of the counter parameter, 0 when the
	// parameter is absent or empty.
	Counter int
	// HasCounter distinguishes counter=0 from no counter at all; the
	// counter is only written back when the parameter exists.
	HasCounter bool
	// MinThreadsLeft is the number of threads that must remain on the
	// page after archiving.
	MinThreadsLeft int
	// MinThreadsToArchive is the minimum number of threads that must be
	// ripe before anything is moved at all.
	MinThreadsToArchive int
	// MaxArchiveSizeKB advances the counter once the target archive
	// exceeds this size.
	MaxArchiveSizeKB int
	// Key is an optional shared secret required to archive to pages
	// that are not subpages of the source; kept verbatim.
	Key string
	// NewestFirst is set on pages maintained by the category tracker:
	// their archives keep the newest section on top.
	NewestFirst bool
}

var sizeRegexp = regexp.MustCompile(`^(\d+)\s*[kK]$`)

// ParseConfig finds the {{Archivage par bot}} template in the parsed
// page and reads its parameters. newestFirst relaxes the thread-count
// safeguards, matching pages maintained by the category tracker.
func ParseConfig(tree *wikicode.List, newestFirst bool) (*Config, error) {
	tmpl := findConfigTemplate(tree)
	if tmpl == nil {
		return nil, fmt.Errorf("no {{%s}} template on the page", configTemplateName)
	}
	fields := tmpl.ParsedFields(wikicode.Trim | wikicode.StripComments)

	cfg := &Config{
		MinThreadsLeft:      5,
		MinThreadsToArchive: 2,
		MaxArchiveSizeKB:    maxArchiveSizeCapKB,
	}
	if newestFirst {
		cfg.MinThreadsLeft = 1
		cfg.MinThreadsToArchive = 1
		cfg.NewestFirst = true
	}

	algo := fields.Value("algo")
	if algo == "" {
		return nil, fmt.Errorf("{{%s}} has no algo parameter", configTemplateName)
	}
	algorithms, err := ParseAlgoChain(algo)
	if err != nil {
		return nil, fmt.Errorf("{{%s}}: %w", configTemplateName, err)
	}
	cfg.Algorithms = algorithms

	cfg.ArchivePattern = fields.Value("archive")
	if cfg.ArchivePattern == "" {
		return nil, fmt.Errorf("{{%s}} has no archive parameter", configTemplateName)
	}
	cfg.ArchiveHeader = fields.Value("archiveheader")
	cfg.Key = fields.Value("key")

	if fields.Has("counter") {
		cfg.HasCounter = true
		if value := fields.Value("counter"); value != "" {
			counter, err := strconv.Atoi(value)
			if err != nil || counter < 0 {
				return nil, fmt.Errorf("{{%s}}: bad counter %q", configTemplateName, value)
			}
			cfg.Counter = counter
		}
	}
	if value := fields.Value("minthreadsleft"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("{{%s}}: bad minthreadsleft %q", configTemplateName, value)
		}
		cfg.MinThreadsLeft = n
	}
	if value := fields.Value("minthreadstoarchive"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("{{%s}}: bad minthreadstoarchive %q", configTemplateName, value)
		}
		cfg.MinThreadsToArchive = n
	}
	if value := fields.Value("maxarchivesize"); value != "" {
		m := sizeRegexp.FindStringSubmatch(value)
		if m == nil {
			return nil, fmt.Errorf("{{%s}}: bad maxarchivesize %q", configTemplateName, value)
		}
		size, err := strconv.Atoi(m[1])
		if err != nil || size < 1 {
			return nil, fmt.Errorf("{{%s}}: bad maxarchivesize %q", configTemplateName, value)
		}
		cfg.MaxArchiveSizeKB = min(size, maxArchiveSizeCapKB)
	}
	return cfg, nil
}

func findConfigTemplate(tree *wikicode.List) *wikicode.Template {
	it := wikicode.NewIterator(tree, wikicode.PrefixDFS, wikicode.TemplateType)
	for n := it.Next(); n != nil; n = it.Next() {
		tmpl := n.(*wikicode.Template)
		if strings.EqualFold(tmpl.Name(), configTemplateName) {
			return tmpl
		}
	}
	return nil
}

// writeCounterToSource updates the counter parameter of the
// {{Archivage par bot}} template in the page text. Everything else is
// reproduced byte for byte.
func writeCounterToSource(source string, counter int) string {
	tree := wikicode.Parse(source)
	tmpl := findConfigTemplate(tree)
	if tmpl == nil {
		return source
	}
	tmpl.SetFieldValue("counter", strconv.Itoa(counter))
	return tree.String()
}
