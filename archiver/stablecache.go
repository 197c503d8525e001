package archiver

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// stableCache remembers, per talk page, the last revision that the
// archiver examined and left unchanged. Pages whose current revision
// matches are skipped without re-running the thread analysis.
type stableCache struct {
	path    string
	revids  map[string]int64
	changed bool
}

func loadStableCache(path string) (*stableCache, error) {
	cache := &stableCache{path: path, revids: make(map[string]int64)}
	if path == "" {
		return cache, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening stable cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if text == "" {
			continue
		}
		revidText, title, found := strings.Cut(text, " ")
		revid, err := strconv.ParseInt(revidText, 10, 64)
		if !found || err != nil || title == "" {
			return nil, fmt.Errorf("stable cache %s line %d: malformed entry %q", path, line, text)
		}
		cache.revids[title] = revid
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stable cache: %w", err)
	}
	return cache, nil
}

// IsStable reports whether the page was already examined at exactly
// this revision.
func (c *stableCache) IsStable(title string, revid int64) bool {
	return revid != 0 && c.revids[title] == revid
}

// MarkStable records that the page needs no archiving at this
// revision.
func (c *stableCache) MarkStable(title string, revid int64) {
	if c.revids[title] == revid {
		return
	}
	c.revids[title] = revid
	c.changed = true
}

// Forget drops the page's entry, forcing a re-examination next run.
func (c *stableCache) Forget(title string) {
	if _, ok := c.revids[title]; !ok {
		return
	}
	delete(c.revids, title)
	c.changed = true
}

// Save rewrites the cache file atomically. A no-op when nothing
// changed or no path was configured.
func (c *stableCache) Save() error {
	if c.path == "" || !c.changed {
		return nil
	}
	var sb strings.Builder
	for title, revid := range c.revids {
		fmt.Fprintf(&sb, "%d %s\n", revid, title)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing stable cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing stable cache: %w", err)
	}
	c.changed = false
	return nil
}
