package archiver

import (
	"context"
	"strings"

	"github.com/orlodrim/wikibot/mwclient"
	"github.com/orlodrim/wikibot/wikidate"
)

// historyCache fetches and memoizes old revisions of talk pages. It
// backs the age fallback for threads without a parsable signature: a
// thread already present in the revision of maxAge ago is at least
// that old.
type historyCache struct {
	client  wikiClient
	content map[string]string
}

func newHistoryCache(client wikiClient) *historyCache {
	return &historyCache{client: client, content: make(map[string]string)}
}

// contentAt returns the content of title as of date at, or "" when the
// page had no revision yet.
func (h *historyCache) contentAt(ctx context.Context, title string, at wikidate.Date) (string, error) {
	key := title + "|" + at.ISO8601()
	if content, ok := h.content[key]; ok {
		return content, nil
	}
	revisions, err := h.client.GetHistory(ctx, title, mwclient.RPContent, mwclient.HistoryOptions{
		Start: at,
		Limit: 1,
	})
	if err != nil {
		return "", err
	}
	content := ""
	if len(revisions) > 0 {
		content = revisions[0].Content
	}
	h.content[key] = content
	return content, nil
}

// threadOlderThan reports whether the thread already existed in the
// revision of the page at date at. Whitespace-insensitive containment
// tolerates later signature or formatting touch-ups around the thread.
func (h *historyCache) threadOlderThan(ctx context.Context, title string, thread *Thread, at wikidate.Date) (bool, error) {
	content, err := h.contentAt(ctx, title, at)
	if err != nil {
		return false, err
	}
	if content == "" {
		return false, nil
	}
	return strings.Contains(squeezeSpace(content), squeezeSpace(thread.Text)), nil
}

// squeezeSpace folds every whitespace run into a single space.
func squeezeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
