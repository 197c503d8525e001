package archiver

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orlodrim/wikibot/mwclient"
	"github.com/orlodrim/wikibot/wikidate"
)

// fakeWrite is one write recorded by the fake client.
type fakeWrite struct {
	title   string
	content string
	summary string
}

// fakeClient serves pages from memory and records writes.
type fakeClient struct {
	pages   map[string]string
	revids  map[string]int64
	history map[string][]*mwclient.Revision
	writes  []fakeWrite
	reads   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages:   make(map[string]string),
		revids:  make(map[string]int64),
		history: make(map[string][]*mwclient.Revision),
	}
}

func (f *fakeClient) revision(title string) *mwclient.Revision {
	content, ok := f.pages[title]
	if !ok {
		return &mwclient.Revision{Title: title, RevID: mwclient.RevIDMissing}
	}
	revid := f.revids[title]
	if revid == 0 {
		revid = 1
	}
	return &mwclient.Revision{
		Title:     title,
		RevID:     revid,
		Content:   content,
		Timestamp: wikidate.MustDate(2026, 8, 1, 0, 0, 0),
	}
}

func (f *fakeClient) ReadPageForEdit(ctx context.Context, title string, props mwclient.RevProps) (*mwclient.Revision, mwclient.WriteToken, error) {
	f.reads++
	rev := f.revision(title)
	if !rev.Exists() {
		return rev, mwclient.CreateToken(title), nil
	}
	return rev, mwclient.EditToken(title, rev.Timestamp), nil
}

func (f *fakeClient) ReadPages(ctx context.Context, titles []string, props mwclient.RevProps) ([]*mwclient.Revision, error) {
	f.reads++
	revs := make([]*mwclient.Revision, len(titles))
	for i, title := range titles {
		revs[i] = f.revision(title)
	}
	return revs, nil
}

func (f *fakeClient) WritePage(ctx context.Context, title string, token mwclient.WriteToken, content, summary string, flags mwclient.EditFlags) error {
	f.writes = append(f.writes, fakeWrite{title: title, content: content, summary: summary})
	f.pages[title] = content
	f.revids[title] = f.revids[title] + 100
	return nil
}

func (f *fakeClient) GetHistory(ctx context.Context, title string, props mwclient.RevProps, opts mwclient.HistoryOptions) ([]*mwclient.Revision, error) {
	f.reads++
	for _, rev := range f.history[title] {
		if !opts.Start.IsNull() && opts.Start.Before(rev.Timestamp) {
			continue
		}
		return []*mwclient.Revision{rev}, nil
	}
	return nil, nil
}

func testArchiver(t *testing.T, client *fakeClient, opts Options) *Archiver {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = func() wikidate.Date { return wikidate.MustDate(2026, 8, 24, 12, 0, 0) }
	}
	a, err := New(client, opts)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

const talkPage = "Discussion:Chose"

func threadText(title, signature string) string {
	return "== " + title + " ==\nContenu. " + signature + "\n"
}

// Two ripe threads plus one fresh one; the page tolerates archiving
// down to one remaining thread.
func agedTalkPage() string {
	return "{{Archivage par bot|algo=old(15d)|archive=/Archive %(counter)d|counter=1|minthreadsleft=1|minthreadstoarchive=1}}\n" +
		threadText("Vieux sujet", "[[Utilisateur:A|A]] 2 janvier 2026 à 10:00 (CET)") +
		threadText("Autre vieux sujet", "[[Utilisateur:B|B]] 5 mars 2026 à 09:30 (CET)") +
		threadText("Sujet récent", "[[Utilisateur:C|C]] 23 août 2026 à 18:00 (CEST)")
}

func TestRunArchivesOldThreads(t *testing.T) {
	client := newFakeClient()
	client.pages[talkPage] = agedTalkPage()
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Archived != 2 || result.Erased != 0 {
		t.Fatalf("result = %+v", result)
	}

	if len(client.writes) != 2 {
		t.Fatalf("made %d writes, want archive then source", len(client.writes))
	}
	archive, source := client.writes[0], client.writes[1]
	if archive.title != talkPage+"/Archive 1" {
		t.Errorf("archive went to %q", archive.title)
	}
	// New archive starts with the default banner and holds the threads
	// oldest first.
	if !strings.HasPrefix(archive.content, "{{Archive de discussion") {
		t.Errorf("archive has no banner: %q", archive.content)
	}
	oldPos := strings.Index(archive.content, "Vieux sujet")
	otherPos := strings.Index(archive.content, "Autre vieux sujet")
	if oldPos < 0 || otherPos < 0 || otherPos < oldPos {
		t.Errorf("archive order wrong: %q", archive.content)
	}
	if !strings.Contains(archive.summary, "Archivage de 2 sujets depuis [["+talkPage+"]]") {
		t.Errorf("archive summary = %q", archive.summary)
	}

	if source.title != talkPage {
		t.Errorf("second write went to %q", source.title)
	}
	if strings.Contains(source.content, "Vieux sujet") {
		t.Errorf("archived thread still on the page: %q", source.content)
	}
	if !strings.Contains(source.content, "Sujet récent") {
		t.Errorf("fresh thread lost: %q", source.content)
	}
	if !strings.Contains(source.summary, "vers [["+talkPage+"/Archive 1]]") {
		t.Errorf("source summary = %q", source.summary)
	}
}

func TestRunKeepsFreshThreads(t *testing.T) {
	client := newFakeClient()
	client.pages[talkPage] = "{{Archivage par bot|algo=old(15d)|archive=/Archive %(counter)d|counter=1|minthreadsleft=1|minthreadstoarchive=1}}\n" +
		threadText("Sujet récent", "[[Utilisateur:C|C]] 23 août 2026 à 18:00 (CEST)")
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Archived != 0 || len(client.writes) != 0 {
		t.Errorf("fresh page was touched: %+v, writes %v", result, client.writes)
	}
}

func TestRunRespectsSafeguards(t *testing.T) {
	// Default policy: at least 5 threads must remain and 2 must be
	// ripe. One ripe thread out of three satisfies neither.
	client := newFakeClient()
	client.pages[talkPage] = "{{Archivage par bot|algo=old(15d)|archive=/Archive %(counter)d|counter=1}}\n" +
		threadText("Vieux sujet", "[[Utilisateur:A|A]] 2 janvier 2026 à 10:00 (CET)") +
		threadText("Récent 1", "[[Utilisateur:B|B]] 23 août 2026 à 18:00 (CEST)") +
		threadText("Récent 2", "[[Utilisateur:C|C]] 23 août 2026 à 19:00 (CEST)")
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Archived != 0 || len(client.writes) != 0 {
		t.Errorf("safeguards ignored: %+v", result)
	}
}

func TestRunTrimsToMinThreadsLeft(t *testing.T) {
	// Both threads are ripe but one must stay: only the older one
	// moves, the newer one is kept.
	client := newFakeClient()
	client.pages[talkPage] = "{{Archivage par bot|algo=old(7d)|archive=/Archive %(counter)d|counter=1|minthreadsleft=1|minthreadstoarchive=1}}\n" +
		threadText("Plus vieux", "[[Utilisateur:A|A]] 2 janvier 2026 à 10:00 (CET)") +
		threadText("Moins vieux", "[[Utilisateur:B|B]] 5 mars 2026 à 09:30 (CET)")
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Archived != 1 {
		t.Fatalf("result = %+v", result)
	}
	archive := client.pages[talkPage+"/Archive 1"]
	if !strings.Contains(archive, "Plus vieux") || strings.Contains(archive, "Moins vieux") {
		t.Errorf("archive = %q", archive)
	}
	source := client.pages[talkPage]
	if strings.Contains(source, "Plus vieux") || !strings.Contains(source, "Moins vieux") {
		t.Errorf("source = %q", source)
	}
}

func TestRunStableCacheSkipsSecondPass(t *testing.T) {
	client := newFakeClient()
	client.pages[talkPage] = "{{Archivage par bot|algo=old(15d)|archive=/Archive %(counter)d|counter=1|minthreadsleft=1|minthreadstoarchive=1}}\n" +
		threadText("Sujet récent", "[[Utilisateur:C|C]] 23 août 2026 à 18:00 (CEST)")
	path := filepath.Join(t.TempDir(), "stable")
	a := testArchiver(t, client, Options{StableCachePath: path})
	ctx := context.Background()

	if _, err := a.Run(ctx, talkPage); err != nil {
		t.Fatal(err)
	}
	if err := a.SaveCache(); err != nil {
		t.Fatal(err)
	}

	// A new archiver sharing the cache file skips the unchanged page.
	a2 := testArchiver(t, client, Options{StableCachePath: path})
	readsBefore := client.reads
	result, err := a2.Run(ctx, talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Error("unchanged page was re-analyzed")
	}
	if client.reads != readsBefore+1 {
		t.Errorf("skip still made %d extra reads", client.reads-readsBefore)
	}

	// Touching the page invalidates the cache entry.
	client.revids[talkPage] = 42
	result, err = a2.Run(ctx, talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped {
		t.Error("changed page still skipped")
	}
}

func TestRunPinnedThreadStays(t *testing.T) {
	client := newFakeClient()
	client.pages[talkPage] = "{{Archivage par bot|algo=old(15d)|archive=/Archive %(counter)d|counter=1|minthreadsleft=1|minthreadstoarchive=1}}\n" +
		"== Épinglé ==\n<!-- Ne pas archiver -->\nVieux mais conservé. [[Utilisateur:A|A]] 2 janvier 2026 à 10:00 (CET)\n" +
		threadText("Vieux sujet", "[[Utilisateur:B|B]] 5 mars 2026 à 09:30 (CET)")
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Archived != 1 {
		t.Fatalf("result = %+v", result)
	}
	source := client.pages[talkPage]
	if !strings.Contains(source, "Épinglé") {
		t.Error("pinned thread was archived")
	}
	if strings.Contains(source, "Vieux sujet") {
		t.Error("unpinned old thread stayed")
	}
}

func TestRunCounterAdvancesOnFullArchive(t *testing.T) {
	client := newFakeClient()
	// The existing archive is close to the 1 kB cap: the first ripe
	// thread still fits, the second one starts Archive 2.
	client.pages[talkPage] = "{{Archivage par bot|algo=old(15d)|archive=/Archive %(counter)d|counter=1|minthreadsleft=1|minthreadstoarchive=1|maxarchivesize=1k}}\n" +
		threadText("Vieux sujet", "[[Utilisateur:A|A]] 2 janvier 2026 à 10:00 (CET)") +
		threadText("Autre vieux sujet", "[[Utilisateur:B|B]] 5 mars 2026 à 09:30 (CET)") +
		threadText("Sujet récent", "[[Utilisateur:C|C]] 23 août 2026 à 18:00 (CEST)")
	client.pages[talkPage+"/Archive 1"] = "{{Archive de discussion}}\n" + strings.Repeat("x", 850) + "\n"
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Targets) != 2 ||
		result.Targets[0] != talkPage+"/Archive 1" || result.Targets[1] != talkPage+"/Archive 2" {
		t.Fatalf("targets = %v", result.Targets)
	}
	if !strings.Contains(client.pages[talkPage], "counter=2") {
		t.Errorf("counter not written back: %q", client.pages[talkPage])
	}
	if !strings.HasPrefix(client.pages[talkPage+"/Archive 2"], "{{Archive de discussion") {
		t.Errorf("new archive has no banner: %q", client.pages[talkPage+"/Archive 2"])
	}
}

func TestRunDryRun(t *testing.T) {
	client := newFakeClient()
	client.pages[talkPage] = agedTalkPage()
	a := testArchiver(t, client, Options{DryRun: true})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if len(client.writes) != 0 {
		t.Fatalf("dry run wrote %d pages", len(client.writes))
	}
	if len(result.Diffs) != 2 {
		t.Fatalf("got %d diffs, want archive and source", len(result.Diffs))
	}
	if !strings.Contains(result.Diffs[1], "-== Vieux sujet ==") {
		t.Errorf("source diff misses the removal:\n%s", result.Diffs[1])
	}
}

func TestRunMissingPage(t *testing.T) {
	client := newFakeClient()
	a := testArchiver(t, client, Options{})
	_, err := a.Run(context.Background(), talkPage)
	if _, ok := err.(*mwclient.PageNotFoundError); !ok {
		t.Errorf("missing page returned %v", err)
	}
}

func TestRunRemoteArchiveNeedsKey(t *testing.T) {
	page := "{{Archivage par bot|algo=old(15d)|archive=Discussion:Ailleurs/Archive|minthreadsleft=0|minthreadstoarchive=1|key=s3cret}}\n" +
		threadText("Vieux sujet", "[[Utilisateur:A|A]] 2 janvier 2026 à 10:00 (CET)") +
		threadText("Autre vieux sujet", "[[Utilisateur:B|B]] 5 mars 2026 à 09:30 (CET)")

	client := newFakeClient()
	client.pages[talkPage] = page
	a := testArchiver(t, client, Options{Key: "other"})
	if _, err := a.Run(context.Background(), talkPage); err == nil {
		t.Error("mismatched key accepted")
	}
	if len(client.writes) != 0 {
		t.Errorf("mismatched key still wrote %d pages", len(client.writes))
	}

	client = newFakeClient()
	client.pages[talkPage] = page
	a = testArchiver(t, client, Options{Key: "s3cret"})
	if _, err := a.Run(context.Background(), talkPage); err != nil {
		t.Errorf("matching key rejected: %v", err)
	}
}

func TestRunNewestFirstTracking(t *testing.T) {
	// Tracked pages hold threads newest first and relax the
	// safeguards; their archives keep the same order, with new threads
	// inserted below the banner, above the ones already archived.
	client := newFakeClient()
	client.pages[talkPage] = "{{Archivage par bot|algo=old(15d)|archive=/Archive %(counter)d|counter=1}}\n" +
		"{{Utilisateur:OrlodrimBot/Suivi catégorie|Catégorie:X}}\n" +
		threadText("Récent", "[[Utilisateur:C|C]] 23 août 2026 à 18:00 (CEST)") +
		threadText("Moins vieux", "[[Utilisateur:B|B]] 5 mars 2026 à 09:30 (CET)") +
		threadText("Plus vieux", "[[Utilisateur:A|A]] 2 janvier 2026 à 10:00 (CET)") +
		"{{Utilisateur:OrlodrimBot/Suivi catégorie/fin}}\n"
	client.pages[talkPage+"/Archive 1"] = "{{Archive de discussion}}\n== Ancien ==\nDéjà archivé.\n"
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Archived != 2 {
		t.Fatalf("result = %+v", result)
	}
	archive := client.pages[talkPage+"/Archive 1"]
	if !strings.HasPrefix(archive, "{{Archive de discussion") {
		t.Errorf("banner no longer on top: %q", archive)
	}
	newPos := strings.Index(archive, "Moins vieux")
	oldPos := strings.Index(archive, "Plus vieux")
	prevPos := strings.Index(archive, "Ancien")
	if newPos < 0 || oldPos < 0 || prevPos < 0 || !(newPos < oldPos && oldPos < prevPos) {
		t.Errorf("archive order wrong: %q", archive)
	}
	source := client.pages[talkPage]
	if !strings.Contains(source, "/fin}}") {
		t.Errorf("wrapper close lost: %q", source)
	}
}

func TestRunHistoryFallbackForUndatedThread(t *testing.T) {
	undated := "== Sans signature ==\nPas de date ici.\n"
	page := "{{Archivage par bot|algo=old(15d)|archive=/Archive %(counter)d|counter=1|minthreadsleft=0|minthreadstoarchive=1}}\n" + undated

	client := newFakeClient()
	client.pages[talkPage] = page
	// The thread was already present in the revision of 15 days ago.
	client.history[talkPage] = []*mwclient.Revision{{
		Title:     talkPage,
		RevID:     1,
		Timestamp: wikidate.MustDate(2026, 7, 1, 0, 0, 0),
		Content:   page,
	}}
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Archived != 1 {
		t.Errorf("undated old thread not archived: %+v", result)
	}

	// Without supporting history the thread stays.
	client = newFakeClient()
	client.pages[talkPage] = page
	a = testArchiver(t, client, Options{})
	result, err = a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Archived != 0 {
		t.Errorf("undated thread archived without evidence: %+v", result)
	}
}

func TestRunEraseNewsletters(t *testing.T) {
	client := newFakeClient()
	client.pages[talkPage] = "{{Archivage par bot|algo=eraseNewsletters(7d)|archive=/Archive %(counter)d|counter=1|minthreadsleft=0|minthreadstoarchive=1}}\n" +
		"== Wikimag ==\n{{Wikimag message|n=5}} [[Utilisateur:X|X]] 2 janvier 2026 à 10:00 (CET)\n" +
		threadText("Discussion normale", "[[Utilisateur:A|A]] 2 janvier 2026 à 10:00 (CET)")
	a := testArchiver(t, client, Options{})

	result, err := a.Run(context.Background(), talkPage)
	if err != nil {
		t.Fatal(err)
	}
	if result.Erased != 1 || result.Archived != 0 {
		t.Fatalf("result = %+v", result)
	}
	// Erased threads go nowhere: one write, the source rewrite.
	if len(client.writes) != 1 || client.writes[0].title != talkPage {
		t.Fatalf("writes = %+v", client.writes)
	}
	if strings.Contains(client.pages[talkPage], "Wikimag") {
		t.Error("newsletter still on the page")
	}
	if !strings.Contains(client.writes[0].summary, "suppression de 1 sujet") {
		t.Errorf("summary = %q", client.writes[0].summary)
	}
}
