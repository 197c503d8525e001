package mwclient

import (
	"context"
	"strconv"

	"github.com/orlodrim/wikibot/jsonv"
	"github.com/orlodrim/wikibot/wikidate"
	"github.com/orlodrim/wikibot/wikicode"
)

// RevProps selects which revision properties a read fills in. The
// revision id is always requested.
type RevProps int

const (
	RPContent RevProps = 1 << iota
	RPTimestamp
	RPUser
	RPUserID
	RPComment
	RPParsedComment
	RPSize
	RPSHA1
	RPTags
	RPContentModel
	RPFlags
)

var revPropTokens = []struct {
	prop  RevProps
	token string
}{
	{RPContent, "content"},
	{RPTimestamp, "timestamp"},
	{RPUser, "user"},
	{RPUserID, "userid"},
	{RPComment, "comment"},
	{RPParsedComment, "parsedcomment"},
	{RPSize, "size"},
	{RPSHA1, "sha1"},
	{RPTags, "tags"},
	{RPContentModel, "contentmodel"},
	{RPFlags, "flags"},
}

func (p RevProps) tokens() []string {
	tokens := []string{"ids"}
	for _, t := range revPropTokens {
		if p&t.prop != 0 {
			tokens = append(tokens, t.token)
		}
	}
	return tokens
}

func setRevisionProps(req *Request, props RevProps) {
	req.Set("prop", "revisions")
	req.SetTokens("rvprop", props.tokens())
	if props&RPContent != 0 {
		req.Set("rvslots", "main")
	}
}

// batches splits items into chunks of at most size elements.
func batches[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// titleResolver follows the server's normalized and redirects maps, so
// results can be matched back to the caller's original spelling.
func titleResolver(query *jsonv.Value) func(string) string {
	rename := map[string]string{}
	for _, key := range []string{"normalized", "redirects"} {
		entries := query.Get(key)
		for i := 0; i < entries.Len(); i++ {
			entry := entries.Index(i)
			rename[entry.Get("from").Str()] = entry.Get("to").Str()
		}
	}
	return func(title string) string {
		for range rename {
			to, ok := rename[title]
			if !ok {
				break
			}
			title = to
		}
		return title
	}
}

// queryPages runs one prop query over titles, batched at the API title
// limit, and returns page objects keyed by the caller's original
// spelling.
func (c *Client) queryPages(ctx context.Context, titles []string, prepare func(req *Request)) (map[string]*jsonv.Value, error) {
	result := make(map[string]*jsonv.Value, len(titles))
	for _, batch := range batches(titles, c.titlesLimit) {
		req := NewRequest("query")
		req.Method = MethodPostNoSideEffect
		req.SetTokens("titles", batch)
		req.Set("redirects", "")
		prepare(req)
		response, err := c.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		query, err := queryResult(response)
		if err != nil {
			return nil, err
		}
		resolve := titleResolver(query)
		byTitle := map[string]*jsonv.Value{}
		pages := query.Get("pages")
		for i := 0; i < pages.Len(); i++ {
			page := pages.Index(i)
			byTitle[page.Get("title").Str()] = page
		}
		var missing []string
		for _, title := range batch {
			page, ok := byTitle[resolve(title)]
			if !ok {
				missing = append(missing, title)
				continue
			}
			result[title] = page
		}
		if len(missing) > 0 {
			return nil, &UnexpectedAPIResponseError{
				Message: "response has no entry for " + quoteList(missing, 5)}
		}
	}
	return result, nil
}

func revisionFromPage(title string, page *jsonv.Value) *Revision {
	if page.Get("missing").Bool() || page.Get("invalid").Bool() {
		return &Revision{Title: page.Get("title").Str(), RevID: RevIDMissing}
	}
	revs := page.Get("revisions")
	if revs.Len() == 0 {
		return &Revision{Title: page.Get("title").Str(), RevID: RevIDMissing}
	}
	return revisionFromJSON(page.Get("title").Str(), page, revs.Index(0))
}

// ReadPages reads the latest revision of each title, in input order.
// Missing pages get a Revision with RevIDMissing instead of an error.
func (c *Client) ReadPages(ctx context.Context, titles []string, props RevProps) ([]*Revision, error) {
	pages, err := c.queryPages(ctx, titles, func(req *Request) {
		setRevisionProps(req, props)
	})
	if err != nil {
		return nil, err
	}
	revisions := make([]*Revision, len(titles))
	for i, title := range titles {
		revisions[i] = revisionFromPage(title, pages[title])
	}
	return revisions, nil
}

// ReadPage reads the latest revision of one page. A missing page is a
// PageNotFoundError.
func (c *Client) ReadPage(ctx context.Context, title string, props RevProps) (*Revision, error) {
	revisions, err := c.ReadPages(ctx, []string{title}, props)
	if err != nil {
		return nil, err
	}
	if !revisions[0].Exists() {
		return nil, &PageNotFoundError{Title: title}
	}
	return revisions[0], nil
}

// ReadPageForEdit reads a page and builds the WriteToken for editing
// it: the base timestamp for conflict detection plus the result of the
// bot-exclusion test. A missing page yields a creation token.
func (c *Client) ReadPageForEdit(ctx context.Context, title string, props RevProps) (*Revision, WriteToken, error) {
	rev, err := c.ReadPages(ctx, []string{title}, props|RPContent|RPTimestamp)
	if err != nil {
		return nil, WriteToken{}, err
	}
	r := rev[0]
	if !r.Exists() {
		return r, CreateToken(r.Title), nil
	}
	token := EditToken(r.Title, r.Timestamp)
	if !wikicode.AllowBots(r.Content, c.externalUser, "") {
		token.needsNoBotsBypass = true
	}
	return r, token, nil
}

// PageExists reports whether the title exists.
func (c *Client) PageExists(ctx context.Context, title string) (bool, error) {
	revisions, err := c.ReadPages(ctx, []string{title}, 0)
	if err != nil {
		return false, err
	}
	return revisions[0].Exists(), nil
}

// ReadRevisions reads specific revisions by id, in input order. A
// deleted or invalid revid is a PageNotFoundError.
func (c *Client) ReadRevisions(ctx context.Context, revids []int64, props RevProps) ([]*Revision, error) {
	byID := map[int64]*Revision{}
	for _, batch := range batches(revids, c.titlesLimit) {
		req := NewRequest("query")
		req.Method = MethodPostNoSideEffect
		ids := make([]string, len(batch))
		for i, id := range batch {
			ids[i] = strconv.FormatInt(id, 10)
		}
		req.SetTokens("revids", ids)
		setRevisionProps(req, props)
		response, err := c.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		query, err := queryResult(response)
		if err != nil {
			return nil, err
		}
		pages := query.Get("pages")
		for i := 0; i < pages.Len(); i++ {
			page := pages.Index(i)
			revs := page.Get("revisions")
			for j := 0; j < revs.Len(); j++ {
				r := revisionFromJSON(page.Get("title").Str(), page, revs.Index(j))
				byID[r.RevID] = r
			}
		}
	}
	revisions := make([]*Revision, len(revids))
	for i, id := range revids {
		r, ok := byID[id]
		if !ok {
			return nil, &PageNotFoundError{Title: "revid " + strconv.FormatInt(id, 10)}
		}
		revisions[i] = r
	}
	return revisions, nil
}

// ReadRevision reads one revision by id.
func (c *Client) ReadRevision(ctx context.Context, revid int64, props RevProps) (*Revision, error) {
	revisions, err := c.ReadRevisions(ctx, []int64{revid}, props)
	if err != nil {
		return nil, err
	}
	return revisions[0], nil
}

// HistoryOptions bounds a history enumeration. Null dates and a zero
// limit mean unbounded.
type HistoryOptions struct {
	Start wikidate.Date // newest bound, enumeration goes backwards
	End   wikidate.Date
	Limit int
}

func (o *HistoryOptions) pagerLimit() int {
	if o.Limit == 0 {
		return PagerAll
	}
	return o.Limit
}

// GetHistory returns revisions of a page, newest first.
func (c *Client) GetHistory(ctx context.Context, title string, props RevProps, opts HistoryOptions) ([]*Revision, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("titles", title)
	setRevisionProps(req, props)
	req.SetDate("rvstart", opts.Start)
	req.SetDate("rvend", opts.End)
	pager := c.NewPropPager(req, "revisions", "rvlimit")
	pager.SetLimit(opts.pagerLimit())
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	revisions := make([]*Revision, len(items))
	for i, item := range items {
		revisions[i] = revisionFromJSON(title, nil, item)
	}
	return revisions, nil
}

// GetDeletedHistory returns deleted revisions of a page, newest first.
// Requires the deletedhistory right.
func (c *Client) GetDeletedHistory(ctx context.Context, title string, props RevProps, opts HistoryOptions) ([]*Revision, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("titles", title)
	req.Set("prop", "deletedrevisions")
	req.SetTokens("drvprop", props.tokens())
	if props&RPContent != 0 {
		req.Set("drvslots", "main")
	}
	req.SetDate("drvstart", opts.Start)
	req.SetDate("drvend", opts.End)
	pager := c.NewPropPager(req, "deletedrevisions", "drvlimit")
	pager.SetLimit(opts.pagerLimit())
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	revisions := make([]*Revision, len(items))
	for i, item := range items {
		revisions[i] = revisionFromJSON(title, nil, item)
	}
	return revisions, nil
}

// pagePropList enumerates a per-page prop list (links, categories...)
// and returns the target titles.
func (c *Client) pagePropList(ctx context.Context, title, prop, prefix string, limit int) ([]string, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("titles", title)
	req.Set("prop", prop)
	pager := c.NewPropPager(req, prop, prefix+"limit")
	if limit != 0 {
		pager.SetLimit(limit)
	}
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Get("title").Str()
	}
	return titles, nil
}

// GetPageLinks returns the titles linked from a page.
func (c *Client) GetPageLinks(ctx context.Context, title string, limit int) ([]string, error) {
	return c.pagePropList(ctx, title, "links", "pl", limit)
}

// GetPageCategories returns the categories of a page.
func (c *Client) GetPageCategories(ctx context.Context, title string, limit int) ([]string, error) {
	return c.pagePropList(ctx, title, "categories", "cl", limit)
}

// GetPageTemplates returns the templates transcluded on a page.
func (c *Client) GetPageTemplates(ctx context.Context, title string, limit int) ([]string, error) {
	return c.pagePropList(ctx, title, "templates", "tl", limit)
}

// GetPageImages returns the files used on a page.
func (c *Client) GetPageImages(ctx context.Context, title string, limit int) ([]string, error) {
	return c.pagePropList(ctx, title, "images", "im", limit)
}

// LangLink is one interlanguage link of a page.
type LangLink struct {
	Lang  string
	Title string
}

// GetPageLangLinks returns the interlanguage links of a page.
func (c *Client) GetPageLangLinks(ctx context.Context, title string, limit int) ([]LangLink, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("titles", title)
	req.Set("prop", "langlinks")
	pager := c.NewPropPager(req, "langlinks", "lllimit")
	if limit != 0 {
		pager.SetLimit(limit)
	}
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	links := make([]LangLink, len(items))
	for i, item := range items {
		links[i] = LangLink{Lang: item.Get("lang").Str(), Title: item.Get("title").Str()}
	}
	return links, nil
}

// GetPagesDisambigStatus reports which of the titles are disambiguation
// pages.
func (c *Client) GetPagesDisambigStatus(ctx context.Context, titles []string) (map[string]bool, error) {
	pages, err := c.queryPages(ctx, titles, func(req *Request) {
		req.Set("prop", "pageprops")
		req.Set("ppprop", "disambiguation")
	})
	if err != nil {
		return nil, err
	}
	status := make(map[string]bool, len(titles))
	for title, page := range pages {
		status[title] = page.Get("pageprops").Has("disambiguation")
	}
	return status, nil
}

// GetPagesWikibaseItems returns the wikidata item of each title, ""
// when unconnected.
func (c *Client) GetPagesWikibaseItems(ctx context.Context, titles []string) (map[string]string, error) {
	pages, err := c.queryPages(ctx, titles, func(req *Request) {
		req.Set("prop", "pageprops")
		req.Set("ppprop", "wikibase_item")
	})
	if err != nil {
		return nil, err
	}
	items := make(map[string]string, len(titles))
	for title, page := range pages {
		items[title] = page.Get("pageprops").Get("wikibase_item").Str()
	}
	return items, nil
}

func protectionFromJSON(entry *jsonv.Value) PageProtection {
	p := PageProtection{
		Type:  ProtectionType(entry.Get("type").Str()),
		Level: ProtectionLevel(entry.Get("level").Str()),
	}
	if expiry := entry.Get("expiry").Str(); expiry != "" && expiry != "infinity" {
		if d, err := wikidate.ParseISO8601(expiry); err == nil {
			p.Expiry = d
		}
	}
	return p
}

// GetPageProtections returns the active protections of a page.
func (c *Client) GetPageProtections(ctx context.Context, title string) ([]PageProtection, error) {
	pages, err := c.queryPages(ctx, []string{title}, func(req *Request) {
		req.Set("prop", "info")
		req.Set("inprop", "protection")
	})
	if err != nil {
		return nil, err
	}
	var protections []PageProtection
	entries := pages[title].Get("protection")
	for i := 0; i < entries.Len(); i++ {
		protections = append(protections, protectionFromJSON(entries.Index(i)))
	}
	return protections, nil
}

// GetImageSize returns the width and height of a file.
func (c *Client) GetImageSize(ctx context.Context, title string) (width, height int, err error) {
	pages, err := c.queryPages(ctx, []string{title}, func(req *Request) {
		req.Set("prop", "imageinfo")
		req.Set("iiprop", "size")
	})
	if err != nil {
		return 0, 0, err
	}
	page := pages[title]
	info := page.Get("imageinfo")
	if page.Get("missing").Bool() || info.Len() == 0 {
		return 0, 0, &PageNotFoundError{Title: title}
	}
	first := info.Index(0)
	return int(first.Get("width").Int(0)), int(first.Get("height").Int(0)), nil
}

// GetCategoriesCount returns the number of members of each category.
func (c *Client) GetCategoriesCount(ctx context.Context, titles []string) (map[string]int, error) {
	pages, err := c.queryPages(ctx, titles, func(req *Request) {
		req.Set("prop", "categoryinfo")
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(titles))
	for title, page := range pages {
		info := page.Get("categoryinfo")
		counts[title] = int(info.Get("pages").Int(0)) + int(info.Get("subcats").Int(0)) + int(info.Get("files").Int(0))
	}
	return counts, nil
}

// listTitles runs a list query and returns the titles of its items.
func (c *Client) listTitles(ctx context.Context, listName, limitParam string, limit int, prepare func(req *Request)) ([]string, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("list", listName)
	prepare(req)
	pager := c.NewPager(req, listName, limitParam)
	if limit != 0 {
		pager.SetLimit(limit)
	}
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Get("title").Str()
	}
	return titles, nil
}

func setNamespaces(req *Request, param string, namespaces []int) {
	if len(namespaces) == 0 {
		return
	}
	tokens := make([]string, len(namespaces))
	for i, n := range namespaces {
		tokens[i] = strconv.Itoa(n)
	}
	req.SetTokens(param, tokens)
}

// GetCategoryMembers returns the members of a category, optionally
// restricted to namespaces. The category title must carry its prefix.
func (c *Client) GetCategoryMembers(ctx context.Context, category string, namespaces []int, limit int) ([]string, error) {
	return c.listTitles(ctx, "categorymembers", "cmlimit", limit, func(req *Request) {
		req.Set("cmtitle", category)
		setNamespaces(req, "cmnamespace", namespaces)
	})
}

// GetBacklinks returns the pages linking to a title.
func (c *Client) GetBacklinks(ctx context.Context, title string, limit int) ([]string, error) {
	return c.listTitles(ctx, "backlinks", "bllimit", limit, func(req *Request) {
		req.Set("bltitle", title)
	})
}

// GetRedirects returns the redirects pointing to a page.
func (c *Client) GetRedirects(ctx context.Context, title string, limit int) ([]string, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("titles", title)
	req.Set("prop", "redirects")
	pager := c.NewPropPager(req, "redirects", "rdlimit")
	if limit != 0 {
		pager.SetLimit(limit)
	}
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Get("title").Str()
	}
	return titles, nil
}

// GetTransclusions returns the pages transcluding a template.
func (c *Client) GetTransclusions(ctx context.Context, title string, limit int) ([]string, error) {
	return c.listTitles(ctx, "embeddedin", "eilimit", limit, func(req *Request) {
		req.Set("eititle", title)
	})
}

// GetAllPages enumerates the pages of a namespace.
func (c *Client) GetAllPages(ctx context.Context, namespace int, limit int) ([]string, error) {
	return c.listTitles(ctx, "allpages", "aplimit", limit, func(req *Request) {
		req.SetInt("apnamespace", int64(namespace))
	})
}

// GetPagesByPrefix enumerates the pages of a namespace whose
// unprefixed title starts with prefix.
func (c *Client) GetPagesByPrefix(ctx context.Context, prefix string, namespace int, limit int) ([]string, error) {
	return c.listTitles(ctx, "allpages", "aplimit", limit, func(req *Request) {
		req.Set("apprefix", prefix)
		req.SetInt("apnamespace", int64(namespace))
	})
}

// GetUserContribs returns a user's contributions, newest first.
func (c *Client) GetUserContribs(ctx context.Context, user string, limit int) ([]*Revision, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("list", "usercontribs")
	req.Set("ucuser", user)
	req.Set("ucprop", "ids|title|timestamp|comment|size|flags")
	pager := c.NewPager(req, "usercontribs", "uclimit")
	if limit != 0 {
		pager.SetLimit(limit)
	}
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	revisions := make([]*Revision, len(items))
	for i, item := range items {
		r := revisionFromJSON(item.Get("title").Str(), nil, item)
		r.User = user
		revisions[i] = r
	}
	return revisions, nil
}

// UserInfo describes one registered user.
type UserInfo struct {
	Name         string
	UserID       int64
	EditCount    int
	Groups       []string
	Registration wikidate.Date
	Missing      bool
}

// GetUsersInfo returns account information for each user, in input
// order.
func (c *Client) GetUsersInfo(ctx context.Context, users []string) ([]UserInfo, error) {
	byName := map[string]UserInfo{}
	for _, batch := range batches(users, c.titlesLimit) {
		req := NewRequest("query")
		req.Method = MethodPostNoSideEffect
		req.Set("list", "users")
		req.SetTokens("ususers", batch)
		req.Set("usprop", "groups|editcount|registration")
		response, err := c.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		query, err := queryResult(response)
		if err != nil {
			return nil, err
		}
		entries := query.Get("users")
		for i := 0; i < entries.Len(); i++ {
			entry := entries.Index(i)
			info := UserInfo{
				Name:      entry.Get("name").Str(),
				UserID:    entry.Get("userid").Int(0),
				EditCount: int(entry.Get("editcount").Int(0)),
				Missing:   entry.Get("missing").Bool() || entry.Get("invalid").Bool(),
			}
			groups := entry.Get("groups")
			for j := 0; j < groups.Len(); j++ {
				info.Groups = append(info.Groups, groups.Index(j).Str())
			}
			if ts := entry.Get("registration").Str(); ts != "" {
				if d, err := wikidate.ParseISO8601(ts); err == nil {
					info.Registration = d
				}
			}
			byName[info.Name] = info
		}
	}
	infos := make([]UserInfo, len(users))
	for i, user := range users {
		info, ok := byName[user]
		if !ok {
			info = UserInfo{Name: user, Missing: true}
		}
		infos[i] = info
	}
	return infos, nil
}

// GetUsersInGroup enumerates the users of a group.
func (c *Client) GetUsersInGroup(ctx context.Context, group string, limit int) ([]string, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("list", "allusers")
	req.Set("augroup", group)
	pager := c.NewPager(req, "allusers", "aulimit")
	if limit != 0 {
		pager.SetLimit(limit)
	}
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Get("name").Str()
	}
	return names, nil
}

// SearchText runs a fulltext search and returns matching titles.
func (c *Client) SearchText(ctx context.Context, search string, namespaces []int, limit int) ([]string, error) {
	return c.listTitles(ctx, "search", "srlimit", limit, func(req *Request) {
		req.Set("srsearch", search)
		setNamespaces(req, "srnamespace", namespaces)
	})
}

// GetExtURLUsage returns the pages linking to an external URL pattern.
func (c *Client) GetExtURLUsage(ctx context.Context, query, protocol string, limit int) ([]string, error) {
	return c.listTitles(ctx, "exturlusage", "eulimit", limit, func(req *Request) {
		req.Set("euquery", query)
		if protocol != "" {
			req.Set("euprotocol", protocol)
		}
	})
}

// RecentChangesOptions bounds a recent-changes enumeration.
type RecentChangesOptions struct {
	// Start is the newest bound; enumeration goes backwards in time.
	Start wikidate.Date
	End   wikidate.Date
	Limit int
	// Types restricts to "edit", "new", "log"; empty means all.
	Types []string
	// ExcludeBots drops bot-flagged changes server-side.
	ExcludeBots bool
}

// GetRecentChanges returns recent changes, newest first.
func (c *Client) GetRecentChanges(ctx context.Context, opts RecentChangesOptions) ([]*RecentChange, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("list", "recentchanges")
	req.Set("rcprop", "title|ids|sizes|flags|user|userid|timestamp|comment|loginfo")
	req.SetDate("rcstart", opts.Start)
	req.SetDate("rcend", opts.End)
	if len(opts.Types) > 0 {
		req.SetTokens("rctype", opts.Types)
	}
	if opts.ExcludeBots {
		req.Set("rcshow", "!bot")
	}
	pager := c.NewPager(req, "recentchanges", "rclimit")
	if opts.Limit != 0 {
		pager.SetLimit(opts.Limit)
	}
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	changes := make([]*RecentChange, len(items))
	for i, item := range items {
		rc, err := recentChangeFromJSON(item)
		if err != nil {
			return nil, err
		}
		changes[i] = rc
	}
	return changes, nil
}

// LogEventsOptions bounds a log enumeration.
type LogEventsOptions struct {
	// Type restricts to one log type, e.g. "move" or "delete".
	Type  string
	Start wikidate.Date
	End   wikidate.Date
	Limit int
}

// GetLogEvents returns public log entries, newest first.
func (c *Client) GetLogEvents(ctx context.Context, opts LogEventsOptions) ([]*LogEvent, error) {
	req := NewRequest("query")
	req.Method = MethodPostNoSideEffect
	req.Set("list", "logevents")
	req.Set("leprop", "ids|title|type|user|userid|timestamp|comment|details")
	if opts.Type != "" {
		req.Set("letype", opts.Type)
	}
	req.SetDate("lestart", opts.Start)
	req.SetDate("leend", opts.End)
	pager := c.NewPager(req, "logevents", "lelimit")
	if opts.Limit != 0 {
		pager.SetLimit(opts.Limit)
	}
	items, err := pager.Collect(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]*LogEvent, len(items))
	for i, item := range items {
		events[i] = logEventFromJSON(item)
	}
	return events, nil
}

// ExpandTemplates expands templates in text as if it were saved on
// title.
func (c *Client) ExpandTemplates(ctx context.Context, title, text string) (string, error) {
	req := NewRequest("expandtemplates")
	req.Method = MethodPostNoSideEffect
	req.Set("title", title)
	req.Set("text", text)
	req.Set("prop", "wikitext")
	result, err := c.Do(ctx, req)
	if err != nil {
		return "", err
	}
	expanded := result.Get("expandtemplates").Get("wikitext")
	if expanded.Kind() != jsonv.String {
		return "", &UnexpectedAPIResponseError{Message: "no wikitext in expandtemplates response"}
	}
	return expanded.Str(), nil
}

// RenderAsHTML renders wikitext to HTML as if it were saved on title.
func (c *Client) RenderAsHTML(ctx context.Context, title, text string) (string, error) {
	req := NewRequest("parse")
	req.Method = MethodPostNoSideEffect
	req.Set("title", title)
	req.Set("text", text)
	req.Set("contentmodel", "wikitext")
	req.Set("prop", "text")
	result, err := c.Do(ctx, req)
	if err != nil {
		return "", err
	}
	html := result.Get("parse").Get("text")
	if html.Kind() != jsonv.String {
		return "", &UnexpectedAPIResponseError{Message: "no text in parse response"}
	}
	return html.Str(), nil
}
