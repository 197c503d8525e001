package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/orlodrim/wikibot/metrics"
	"github.com/orlodrim/wikibot/mwclient"
	"github.com/orlodrim/wikibot/wikicode"
	"github.com/orlodrim/wikibot/wikidate"
)

// wikiClient is the part of mwclient.Client the archiver uses.
type wikiClient interface {
	ReadPageForEdit(ctx context.Context, title string, props mwclient.RevProps) (*mwclient.Revision, mwclient.WriteToken, error)
	ReadPages(ctx context.Context, titles []string, props mwclient.RevProps) ([]*mwclient.Revision, error)
	WritePage(ctx context.Context, title string, token mwclient.WriteToken, content, summary string, flags mwclient.EditFlags) error
	GetHistory(ctx context.Context, title string, props mwclient.RevProps, opts mwclient.HistoryOptions) ([]*mwclient.Revision, error)
}

// defaultArchiveHeader starts archive pages whose configuration gives
// no archiveheader.
const defaultArchiveHeader = "{{Archive de discussion}}"

// Markers that pin a thread to the page whatever the algorithms say.
var pinnedMarkers = []string{
	"{{" + configTemplateName,
	"{{Ne pas archiver",
	"<!-- Ne pas archiver -->",
}

// Options configures an Archiver.
type Options struct {
	Logger *slog.Logger
	// Key authorizes configurations whose archive target is not a
	// subpage of the talk page; the page's key parameter must match.
	Key string
	// DryRun computes and logs diffs without writing anything.
	DryRun bool
	// StableCachePath persists the revids of pages found stable, so
	// unchanged pages are skipped on the next run. Empty disables the
	// cache.
	StableCachePath string
	// Now overrides the clock in tests.
	Now func() wikidate.Date
}

// Archiver applies per-page archiving configurations to talk pages.
type Archiver struct {
	client wikiClient
	logger *slog.Logger
	key    string
	dryRun bool
	now    func() wikidate.Date
	stable *stableCache
}

// New builds an archiver, loading the stable-revid cache if one is
// configured.
func New(client wikiClient, opts Options) (*Archiver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() wikidate.Date { return wikidate.FromTime(time.Now()) }
	}
	stable, err := loadStableCache(opts.StableCachePath)
	if err != nil {
		return nil, err
	}
	return &Archiver{
		client: client,
		logger: logger,
		key:    opts.Key,
		dryRun: opts.DryRun,
		now:    now,
		stable: stable,
	}, nil
}

// SaveCache persists the stable-revid cache. Call it once after a
// batch of Run calls.
func (a *Archiver) SaveCache() error { return a.stable.Save() }

// Result reports what Run did to one page.
type Result struct {
	// Skipped is set when the page revision was known stable and the
	// analysis did not run.
	Skipped  bool
	Archived int
	Erased   int
	// Targets are the archive pages written to, in write order.
	Targets []string
	// Diffs holds one unified diff per planned write in dry-run mode.
	Diffs []string
}

// plannedThread is a thread with its decided fate.
type plannedThread struct {
	thread *Thread
	action Action
	date   wikidate.Date
}

// archiveWrite is one pending append to an archive page.
type archiveWrite struct {
	title   string
	threads []*Thread
	oldest  wikidate.Date
	newest  wikidate.Date
}

// Run archives one talk page according to its own configuration.
func (a *Archiver) Run(ctx context.Context, title string) (*Result, error) {
	now := a.now()
	rev, token, err := a.client.ReadPageForEdit(ctx, title, 0)
	if err != nil {
		return nil, err
	}
	if token.Creates() {
		return nil, &mwclient.PageNotFoundError{Title: title}
	}
	if a.stable.IsStable(title, rev.RevID) {
		metrics.PagesSkippedStable.Inc()
		return &Result{Skipped: true}, nil
	}
	if token.NeedsBotsBypass() {
		return nil, &mwclient.BotExclusionError{Title: title}
	}

	d := Decompose(rev.Content)
	cfg, err := ParseConfig(wikicode.Parse(rev.Content), d.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", title, err)
	}

	plans, err := a.decideThreads(ctx, title, d, cfg, now)
	if err != nil {
		return nil, err
	}
	archivable := 0
	for _, thread := range d.Threads {
		if thread.Level == 2 {
			archivable++
		}
	}
	moved := trimToLeaveMinimum(plans, archivable, cfg.MinThreadsLeft)
	if moved == 0 || moved < cfg.MinThreadsToArchive {
		a.stable.MarkStable(title, rev.RevID)
		return &Result{}, nil
	}

	writes, counter, err := a.planArchives(ctx, title, cfg, plans, now)
	if err != nil {
		return nil, err
	}
	for _, write := range writes {
		if !strings.HasPrefix(write.title, title+"/") && (cfg.Key == "" || cfg.Key != a.key) {
			return nil, fmt.Errorf("%s: archive target %s is not a subpage and the key does not match", title, write.title)
		}
	}

	result := &Result{}
	// Archives first: if the run dies between the two phases, threads
	// are duplicated rather than lost.
	for _, write := range writes {
		if err := a.writeArchive(ctx, title, cfg, write, result); err != nil {
			return nil, err
		}
		result.Targets = append(result.Targets, write.title)
		result.Archived += len(write.threads)
	}

	movedSet := make(map[*Thread]bool)
	for _, plan := range plans {
		if plan.action != Keep {
			movedSet[plan.thread] = true
			if plan.action == Erase {
				result.Erased++
			}
		}
	}
	newSource := d.Recompose(func(t *Thread) bool { return !movedSet[t] })
	if cfg.HasCounter && patternUsesCounter(cfg.ArchivePattern) && counter != cfg.Counter {
		newSource = writeCounterToSource(newSource, counter)
	}
	summary := sourceSummary(result)
	if err := a.write(ctx, title, token, newSource, rev.Content, summary, result); err != nil {
		return nil, err
	}

	a.stable.Forget(title)
	metrics.ThreadsArchived.WithLabelValues("archived").Add(float64(result.Archived))
	metrics.ThreadsArchived.WithLabelValues("erased").Add(float64(result.Erased))
	a.logger.Info("archived page", "title", title,
		"archived", result.Archived, "erased", result.Erased, "targets", result.Targets)
	return result, nil
}

// decideThreads runs the algorithm chain on every thread.
func (a *Archiver) decideThreads(ctx context.Context, title string, d *Decomposition, cfg *Config, now wikidate.Date) ([]*plannedThread, error) {
	hist := newHistoryCache(a.client)
	var plans []*plannedThread
	for _, thread := range d.Threads {
		action, date, err := a.decideThread(ctx, title, thread, cfg, now, hist)
		if err != nil {
			return nil, err
		}
		plans = append(plans, &plannedThread{thread: thread, action: action, date: date})
	}
	return plans, nil
}

func (a *Archiver) decideThread(ctx context.Context, title string, thread *Thread, cfg *Config, now wikidate.Date, hist *historyCache) (Action, wikidate.Date, error) {
	if thread.Level != 2 || threadPinned(thread.Text) {
		return Keep, wikidate.NullDate, nil
	}
	for _, algo := range cfg.Algorithms {
		action, forced := algo.Evaluate(thread)
		if action == Keep {
			continue
		}
		// The first algorithm that matches decides; the age threshold
		// only delays it.
		date := wikidate.Max(forced, wikidate.ParseSignatureDate(thread.Text))
		if !date.IsNull() {
			if now.Sub(date) >= algo.MaxAge {
				return action, date, nil
			}
			return Keep, date, nil
		}
		// No parsable date: a thread already present maxAge ago is at
		// least that old.
		cutoff := now.Add(-algo.MaxAge)
		older, err := hist.threadOlderThan(ctx, title, thread, cutoff)
		if err != nil {
			return Keep, wikidate.NullDate, err
		}
		if older {
			return action, cutoff, nil
		}
		return Keep, wikidate.NullDate, nil
	}
	return Keep, wikidate.NullDate, nil
}

// trimToLeaveMinimum reverts the newest planned moves to Keep until at
// least minLeft archivable threads stay on the page, and returns the
// number of threads still moved.
func trimToLeaveMinimum(plans []*plannedThread, archivable, minLeft int) int {
	var movedPlans []*plannedThread
	for _, plan := range plans {
		if plan.action != Keep {
			movedPlans = append(movedPlans, plan)
		}
	}
	excess := minLeft - (archivable - len(movedPlans))
	if excess <= 0 {
		return len(movedPlans)
	}
	ordered := chronological(movedPlans)
	for i := len(ordered) - 1; i >= 0 && excess > 0; i-- {
		ordered[i].action = Keep
		excess--
	}
	moved := 0
	for _, plan := range movedPlans {
		if plan.action != Keep {
			moved++
		}
	}
	return moved
}

func threadPinned(text string) bool {
	for _, marker := range pinnedMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// planArchives groups the threads to archive by target page and
// returns the final counter value.
func (a *Archiver) planArchives(ctx context.Context, title string, cfg *Config, plans []*plannedThread, now wikidate.Date) ([]*archiveWrite, int, error) {
	var toArchive []*plannedThread
	for _, plan := range plans {
		if plan.action == Archive {
			toArchive = append(toArchive, plan)
		}
	}
	if len(toArchive) == 0 {
		return nil, cfg.Counter, nil
	}

	if patternUsesCounter(cfg.ArchivePattern) {
		return a.planCounterArchives(ctx, title, cfg, toArchive, now)
	}

	// Date-based or fixed target: each thread's own date picks the
	// archive page.
	var writes []*archiveWrite
	byTitle := make(map[string]*archiveWrite)
	for _, plan := range chronological(toArchive) {
		date := plan.date
		if date.IsNull() {
			date = now
		}
		target, err := ExpandArchivePattern(cfg.ArchivePattern, title, cfg.Counter, date)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", title, err)
		}
		write := byTitle[target]
		if write == nil {
			write = &archiveWrite{title: target}
			byTitle[target] = write
			writes = append(writes, write)
		}
		appendThread(write, plan)
	}
	return writes, cfg.Counter, nil
}

// planCounterArchives fills the current numbered archive and advances
// the counter when it outgrows maxarchivesize.
func (a *Archiver) planCounterArchives(ctx context.Context, title string, cfg *Config, toArchive []*plannedThread, now wikidate.Date) ([]*archiveWrite, int, error) {
	counter, err := a.locateCounter(ctx, title, cfg, now)
	if err != nil {
		return nil, 0, err
	}
	target, err := ExpandArchivePattern(cfg.ArchivePattern, title, counter, now)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", title, err)
	}
	revs, err := a.client.ReadPages(ctx, []string{target}, mwclient.RPContent)
	if err != nil {
		return nil, 0, err
	}
	size := len(revs[0].Content)
	maxSize := cfg.MaxArchiveSizeKB * 1000

	write := &archiveWrite{title: target}
	writes := []*archiveWrite{write}
	for _, plan := range chronological(toArchive) {
		if size > 0 && size+len(plan.thread.Text) > maxSize {
			counter++
			target, err = ExpandArchivePattern(cfg.ArchivePattern, title, counter, now)
			if err != nil {
				return nil, 0, fmt.Errorf("%s: %w", title, err)
			}
			write = &archiveWrite{title: target}
			writes = append(writes, write)
			size = 0
		}
		appendThread(write, plan)
		size += len(plan.thread.Text)
	}
	// The first group stays empty when the current archive is already
	// full.
	nonEmpty := writes[:0]
	for _, write := range writes {
		if len(write.threads) > 0 {
			nonEmpty = append(nonEmpty, write)
		}
	}
	return nonEmpty, counter, nil
}

// locateCounter finds the numbered archive currently being filled. The
// configured counter is trusted when it points at the last existing
// archive; otherwise the boundary is searched from scratch.
func (a *Archiver) locateCounter(ctx context.Context, title string, cfg *Config, now wikidate.Date) (int, error) {
	exists := func(counter int) (bool, error) {
		target, err := ExpandArchivePattern(cfg.ArchivePattern, title, counter, now)
		if err != nil {
			return false, fmt.Errorf("%s: %w", title, err)
		}
		revs, err := a.client.ReadPages(ctx, []string{target}, 0)
		if err != nil {
			return false, err
		}
		return revs[0].Exists(), nil
	}

	if cfg.Counter >= 1 {
		ok, err := exists(cfg.Counter)
		if err != nil {
			return 0, err
		}
		if ok {
			next, err := exists(cfg.Counter + 1)
			if err != nil {
				return 0, err
			}
			if !next {
				return cfg.Counter, nil
			}
		} else if cfg.Counter == 1 {
			return 1, nil
		}
	}

	// The counter parameter is stale or absent. Exponential probe for
	// the first missing archive, then binary search the boundary.
	ok, err := exists(1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	lastExists, firstMissing := 1, 0
	for probe := 2; probe <= 1<<20; probe *= 2 {
		ok, err := exists(probe)
		if err != nil {
			return 0, err
		}
		if !ok {
			firstMissing = probe
			break
		}
		lastExists = probe
	}
	if firstMissing == 0 {
		return 0, fmt.Errorf("%s: more than %d archives, giving up the counter search", title, 1<<20)
	}
	for firstMissing-lastExists > 1 {
		mid := lastExists + (firstMissing-lastExists)/2
		ok, err := exists(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			lastExists = mid
		} else {
			firstMissing = mid
		}
	}
	return lastExists, nil
}

// chronological orders threads oldest first so archives read top to
// bottom in time order. Undated threads sort first.
func chronological(plans []*plannedThread) []*plannedThread {
	ordered := make([]*plannedThread, len(plans))
	copy(ordered, plans)
	// Insertion sort keeps the order stable for equal or null dates.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].date.Before(ordered[j-1].date); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

func appendThread(write *archiveWrite, plan *plannedThread) {
	write.threads = append(write.threads, plan.thread)
	if !plan.date.IsNull() {
		if write.oldest.IsNull() {
			write.oldest = plan.date
		} else {
			write.oldest = wikidate.Min(write.oldest, plan.date)
		}
		write.newest = wikidate.Max(write.newest, plan.date)
	}
}

// writeArchive adds the threads to one archive page, creating it with
// the configured header when missing. The threads go to the end of the
// page, or right below the header on newest-first archives.
func (a *Archiver) writeArchive(ctx context.Context, source string, cfg *Config, write *archiveWrite, result *Result) error {
	rev, token, err := a.client.ReadPageForEdit(ctx, write.title, 0)
	if err != nil {
		return err
	}
	threads := write.threads
	if cfg.NewestFirst {
		threads = make([]*Thread, len(write.threads))
		for i, thread := range write.threads {
			threads[len(threads)-1-i] = thread
		}
	}
	var block strings.Builder
	for _, thread := range threads {
		if block.Len() > 0 {
			block.WriteString("\n")
		}
		text := thread.Text
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		block.WriteString(text)
	}

	var content string
	switch {
	case token.Creates():
		header := cfg.ArchiveHeader
		if header == "" {
			header = defaultArchiveHeader
		}
		content = header + "\n" + block.String()
	case cfg.NewestFirst:
		d := Decompose(rev.Content)
		var sb strings.Builder
		sb.WriteString(d.Header.Text)
		if d.Header.Text != "" && !strings.HasSuffix(d.Header.Text, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString(block.String())
		for i, thread := range d.Threads {
			if i == 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(thread.Text)
		}
		sb.WriteString(d.Trailer)
		content = sb.String()
	default:
		content = rev.Content
		if content != "" {
			content += "\n"
		}
		content += block.String()
	}
	content = updateArchiveBounds(content, write.oldest, write.newest)

	summary := fmt.Sprintf("Archivage de %d sujet%s depuis [[%s]]",
		len(write.threads), plural(len(write.threads)), source)
	return a.write(ctx, write.title, token, content, rev.Content, summary, result)
}

// write performs one page write, or records a diff in dry-run mode.
func (a *Archiver) write(ctx context.Context, title string, token mwclient.WriteToken, content, oldContent, summary string, result *Result) error {
	if a.dryRun {
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(oldContent),
			B:        difflib.SplitLines(content),
			FromFile: title,
			ToFile:   title,
			Context:  3,
		})
		if err != nil {
			return err
		}
		result.Diffs = append(result.Diffs, diff)
		a.logger.Info("dry run", "title", title, "summary", summary, "diff", diff)
		return nil
	}
	return a.client.WritePage(ctx, title, token, content, summary, 0)
}

// updateArchiveBounds maintains the début and fin parameters of the
// {{Archive de discussion}} banner on the archive page.
func updateArchiveBounds(content string, oldest, newest wikidate.Date) string {
	if newest.IsNull() {
		return content
	}
	tree := wikicode.Parse(content)
	it := wikicode.NewIterator(tree, wikicode.PrefixDFS, wikicode.TemplateType)
	for n := it.Next(); n != nil; n = it.Next() {
		tmpl := n.(*wikicode.Template)
		if !strings.EqualFold(tmpl.Name(), "Archive de discussion") {
			continue
		}
		fields := tmpl.ParsedFields(wikicode.Trim | wikicode.StripComments)
		if fields.Value("début") == "" && !oldest.IsNull() {
			tmpl.SetFieldValue("début", frenchMonthYear(oldest))
		}
		tmpl.SetFieldValue("fin", frenchMonthYear(newest))
		return tree.String()
	}
	return content
}

func frenchMonthYear(d wikidate.Date) string {
	return fmt.Sprintf("%s %d", wikidate.FrenchMonthName(d.Month()), d.Year())
}

// sourceSummary builds the edit summary of the talk-page rewrite.
func sourceSummary(result *Result) string {
	var parts []string
	if result.Archived > 0 {
		targets := result.Targets
		suffix := ""
		if len(targets) > 2 {
			targets = targets[:2]
			suffix = "…"
		}
		links := make([]string, len(targets))
		for i, target := range targets {
			links[i] = "[[" + target + "]]"
		}
		parts = append(parts, fmt.Sprintf("Archivage de %d sujet%s vers %s%s",
			result.Archived, plural(result.Archived), strings.Join(links, ", "), suffix))
	}
	if result.Erased > 0 {
		parts = append(parts, fmt.Sprintf("suppression de %d sujet%s obsolète%s",
			result.Erased, plural(result.Erased), plural(result.Erased)))
	}
	return strings.Join(parts, " ; ")
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
