package mwclient

import (
	"context"
	"errors"
	"strings"

	"github.com/orlodrim/wikibot/jsonv"
	"github.com/orlodrim/wikibot/metrics"
	"github.com/orlodrim/wikibot/wikidate"
)

// EditFlags adjust a page write.
type EditFlags int

const (
	// EditMinor marks the edit as minor.
	EditMinor EditFlags = 1 << iota
	// EditOmitBotFlag makes the edit show up in watchlists.
	EditOmitBotFlag
	// EditAppend appends the content instead of replacing the page.
	EditAppend
	// EditAllowBlanking permits saving an empty page.
	EditAllowBlanking
	// EditBypassNoBots overrides the page's bot-exclusion template.
	EditBypassNoBots
)

type writeTokenKind int

const (
	tokenUninitialized writeTokenKind = iota
	tokenCreate
	tokenEdit
	tokenNoConflict
)

var writeTokenKindNames = map[writeTokenKind]string{
	tokenCreate:     "create",
	tokenEdit:       "edit",
	tokenNoConflict: "noconflict",
}

// WriteToken carries the read-side state a write needs: whether the
// page is being created, the base timestamp for conflict detection,
// and whether the page excludes this bot. Tokens serialize to strings
// so a read and its write can live in different processes.
type WriteToken struct {
	kind              writeTokenKind
	title             string
	baseTimestamp     wikidate.Date
	needsNoBotsBypass bool
}

// CreateToken returns a token that only allows creating the page.
func CreateToken(title string) WriteToken {
	return WriteToken{kind: tokenCreate, title: title}
}

// EditToken returns a token for editing an existing page, carrying the
// timestamp of the revision the caller read.
func EditToken(title string, baseTimestamp wikidate.Date) WriteToken {
	return WriteToken{kind: tokenEdit, title: title, baseTimestamp: baseTimestamp}
}

// NoConflictToken returns a token that overwrites the page whether it
// exists or not, without conflict detection.
func NoConflictToken(title string) WriteToken {
	return WriteToken{kind: tokenNoConflict, title: title}
}

// Title returns the page the token was issued for.
func (t WriteToken) Title() string { return t.title }

// Creates reports whether the token is a creation token.
func (t WriteToken) Creates() bool { return t.kind == tokenCreate }

// NeedsBotsBypass reports whether the page excludes bots, in which
// case writing requires EditBypassNoBots.
func (t WriteToken) NeedsBotsBypass() bool { return t.needsNoBotsBypass }

// String serializes the token; ParseWriteToken reverses it.
func (t WriteToken) String() string {
	name, ok := writeTokenKindNames[t.kind]
	if !ok {
		return ""
	}
	bypass := "0"
	if t.needsNoBotsBypass {
		bypass = "1"
	}
	base := ""
	if !t.baseTimestamp.IsNull() {
		base = t.baseTimestamp.ISO8601()
	}
	return name + "|" + base + "|" + bypass + "|" + t.title
}

// ParseWriteToken deserializes a token produced by String.
func ParseWriteToken(s string) (WriteToken, error) {
	if s == "" {
		return WriteToken{}, nil
	}
	parts := strings.SplitN(s, "|", 4)
	if len(parts) != 4 {
		return WriteToken{}, &ParseError{Message: "malformed write token"}
	}
	t := WriteToken{title: parts[3], needsNoBotsBypass: parts[2] == "1"}
	for kind, name := range writeTokenKindNames {
		if name == parts[0] {
			t.kind = kind
		}
	}
	if t.kind == tokenUninitialized {
		return WriteToken{}, &ParseError{Message: "unknown write token kind " + parts[0]}
	}
	if parts[1] != "" {
		base, err := wikidate.ParseISO8601(parts[1])
		if err != nil {
			return WriteToken{}, &ParseError{Message: "write token timestamp: " + err.Error()}
		}
		t.baseTimestamp = base
	}
	return t, nil
}

// doWrite runs one content-changing action through the emergency stop,
// the inter-edit delay and the badtoken retry loop (two retries, with
// a forced re-login before the last one).
func (c *Client) doWrite(ctx context.Context, operation, action string, build func(req *Request, csrf string)) (*jsonv.Value, error) {
	if err := c.checkEmergencyStop(ctx); err != nil {
		metrics.RecordEdit(operation, false)
		return nil, err
	}
	if err := c.waitBeforeEdit(ctx); err != nil {
		return nil, err
	}
	var result *jsonv.Value
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		var csrf string
		csrf, err = c.getToken(ctx, TokenCSRF)
		if err != nil {
			break
		}
		req := NewRequest(action)
		req.Method = MethodPost
		build(req, csrf)
		result, err = c.Do(ctx, req)
		var apiErr *APIError
		if err == nil || !errors.As(err, &apiErr) || apiErr.Code != "badtoken" {
			break
		}
		c.logger.Warn("stale edit token", "operation", operation, "attempt", attempt+1)
		c.invalidateTokens()
		if attempt == 1 {
			if loginErr := c.relogin(ctx); loginErr != nil {
				err = annotate("re-login after badtoken", loginErr)
				break
			}
		}
	}
	metrics.RecordEdit(operation, err == nil)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WritePage saves content on the page the token was issued for. The
// title must match the token; creation tokens reject existing pages;
// tokens carrying a bot-exclusion hit reject without EditBypassNoBots;
// blanking a page requires EditAllowBlanking.
func (c *Client) WritePage(ctx context.Context, title string, token WriteToken, content, summary string, flags EditFlags) error {
	if token.kind == tokenUninitialized {
		return &InvalidStateError{Message: "write token is uninitialized"}
	}
	if token.title != title {
		return &InvalidParameterError{Message: "write token was issued for " + token.title + ", not " + title}
	}
	if token.needsNoBotsBypass && flags&EditBypassNoBots == 0 {
		return &BotExclusionError{Title: title}
	}
	if content == "" && flags&EditAllowBlanking == 0 && flags&EditAppend == 0 {
		return &InvalidParameterError{Message: "refusing to blank " + title}
	}

	_, err := c.doWrite(ctx, "edit", "edit", func(req *Request, csrf string) {
		req.Set("title", title)
		if flags&EditAppend != 0 {
			req.Set("appendtext", content)
		} else {
			req.Set("text", content)
		}
		req.Set("summary", summary)
		req.Set("token", csrf)
		req.Set("watchlist", "nochange")
		if flags&EditMinor != 0 {
			req.Set("minor", "")
		}
		if flags&EditOmitBotFlag == 0 {
			req.Set("bot", "")
		}
		switch token.kind {
		case tokenCreate:
			req.Set("createonly", "")
		case tokenEdit:
			req.Set("nocreate", "")
			req.SetDate("basetimestamp", token.baseTimestamp)
		}
	})
	if err != nil {
		return annotate("writing "+title, err)
	}
	return nil
}

// EditPage runs a read-modify-write: it reads the page, applies
// transform, and saves the result. Returning the content unchanged
// skips the write. One edit conflict triggers an automatic re-read.
func (c *Client) EditPage(ctx context.Context, title string, transform func(content string) (string, error), summary string, flags EditFlags) error {
	for attempt := 0; ; attempt++ {
		rev, token, err := c.ReadPageForEdit(ctx, title, 0)
		if err != nil {
			return err
		}
		newContent, err := transform(rev.Content)
		if err != nil {
			return err
		}
		if rev.Exists() && newContent == rev.Content {
			return nil
		}
		err = c.WritePage(ctx, title, token, newContent, summary, flags)
		var conflict *EditConflictError
		if err == nil || attempt > 0 || !errors.As(err, &conflict) {
			return err
		}
		c.logger.Warn("edit conflict, retrying", "title", title)
	}
}

// MovePage renames a page.
func (c *Client) MovePage(ctx context.Context, from, to, summary string, moveTalk, suppressRedirect bool) error {
	_, err := c.doWrite(ctx, "move", "move", func(req *Request, csrf string) {
		req.Set("from", from)
		req.Set("to", to)
		req.Set("reason", summary)
		req.Set("token", csrf)
		if moveTalk {
			req.Set("movetalk", "")
		}
		if suppressRedirect {
			req.Set("noredirect", "")
		}
	})
	if err != nil {
		return annotate("moving "+from, err)
	}
	return nil
}

// SetPageProtection protects or unprotects a page. An empty level
// clears the protection of that type.
func (c *Client) SetPageProtection(ctx context.Context, title string, protections []PageProtection, summary string) error {
	levels := make([]string, len(protections))
	for i, p := range protections {
		level := string(p.Level)
		if level == "" {
			level = "all"
		}
		levels[i] = string(p.Type) + "=" + level
	}
	_, err := c.doWrite(ctx, "protect", "protect", func(req *Request, csrf string) {
		req.Set("title", title)
		req.SetTokens("protections", levels)
		req.Set("reason", summary)
		req.Set("token", csrf)
	})
	if err != nil {
		return annotate("protecting "+title, err)
	}
	return nil
}

// DeletePage deletes a page. Requires the delete right.
func (c *Client) DeletePage(ctx context.Context, title, summary string) error {
	_, err := c.doWrite(ctx, "delete", "delete", func(req *Request, csrf string) {
		req.Set("title", title)
		req.Set("reason", summary)
		req.Set("token", csrf)
	})
	if err != nil {
		return annotate("deleting "+title, err)
	}
	return nil
}

// PurgePage invalidates the server-side render cache of pages.
func (c *Client) PurgePage(ctx context.Context, titles ...string) error {
	for _, batch := range batches(titles, c.titlesLimit) {
		req := NewRequest("purge")
		req.Method = MethodPostNoSideEffect
		req.SetTokens("titles", batch)
		if _, err := c.Do(ctx, req); err != nil {
			return annotate("purging "+quoteList(batch, 3), err)
		}
	}
	return nil
}

// EmailUser sends a wiki email to a user with email enabled.
func (c *Client) EmailUser(ctx context.Context, user, subject, text string) error {
	_, err := c.doWrite(ctx, "email", "emailuser", func(req *Request, csrf string) {
		req.Set("target", user)
		req.Set("subject", subject)
		req.Set("text", text)
		req.Set("token", csrf)
	})
	if err != nil {
		return annotate("emailing "+user, err)
	}
	return nil
}

// FlowNewTopic opens a new topic on a structured discussion board.
func (c *Client) FlowNewTopic(ctx context.Context, title, topic, content string) error {
	_, err := c.doWrite(ctx, "flow", "flow", func(req *Request, csrf string) {
		req.Set("submodule", "new-topic")
		req.Set("page", title)
		req.Set("nttopic", topic)
		req.Set("ntcontent", content)
		req.Set("token", csrf)
	})
	if err != nil {
		return annotate("posting on "+title, err)
	}
	return nil
}
