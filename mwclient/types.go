// Package mwclient implements a MediaWiki API client for maintenance
// bots: a typed request builder with retry policy, session and token
// management with a persistent session file, batched read operations,
// paged enumerations with opaque continue tokens, and write operations
// guarded by write tokens, bot-exclusion checks and an emergency stop.
package mwclient

import (
	"strconv"

	"github.com/orlodrim/wikibot/jsonv"
	"github.com/orlodrim/wikibot/wikidate"
)

// ContentModel is the content model of a revision.
type ContentModel int

const (
	ContentModelInvalid ContentModel = iota
	ContentModelWikitext
	ContentModelFlowBoard
)

func contentModelFromString(s string) ContentModel {
	switch s {
	case "wikitext":
		return ContentModelWikitext
	case "flow-board":
		return ContentModelFlowBoard
	}
	return ContentModelInvalid
}

// RevIDUnset marks a Revision whose revid was not requested.
const RevIDUnset int64 = 0

// RevIDMissing marks a title that did not exist at read time.
const RevIDMissing int64 = -1

// Revision is one page revision, with only the requested properties
// filled in.
type Revision struct {
	Title         string
	RevID         int64
	Timestamp     wikidate.Date
	User          string
	UserID        int64
	Size          int
	Comment       string
	ParsedComment string
	Content       string
	SHA1          string
	Tags          []string
	ContentModel  ContentModel

	Minor         bool
	Bot           bool
	New           bool
	Redirect      bool
	Patrolled     bool
	ContentHidden bool
}

// Exists reports whether the title existed at read time.
func (r *Revision) Exists() bool { return r.RevID != RevIDMissing }

// LogEvent is one entry of the public log.
type LogEvent struct {
	LogID         int64
	Type          string
	Action        string
	Timestamp     wikidate.Date
	Title         string
	User          string
	UserID        int64
	Comment       string
	ParsedComment string
	// MoveTarget and SuppressRedirect are set for move events.
	MoveTarget       string
	SuppressRedirect bool
}

// RecentChangeType tags the payload of a RecentChange.
type RecentChangeType int

const (
	RCEdit RecentChangeType = iota
	RCNew
	RCLog
)

// RecentChange is one entry of the recent-changes feed: an edit or
// page creation carrying a Revision, or a log entry carrying a
// LogEvent.
type RecentChange struct {
	Type     RecentChangeType
	RCID     int64
	OldRevID int64
	OldSize  int
	Revision *Revision
	LogEvent *LogEvent
}

// Title returns the title of the embedded payload.
func (rc *RecentChange) Title() string {
	if rc.Type == RCLog {
		return rc.LogEvent.Title
	}
	return rc.Revision.Title
}

// Timestamp returns the timestamp of the embedded payload.
func (rc *RecentChange) Timestamp() wikidate.Date {
	if rc.Type == RCLog {
		return rc.LogEvent.Timestamp
	}
	return rc.Revision.Timestamp
}

// User returns the acting user of the embedded payload.
func (rc *RecentChange) User() string {
	if rc.Type == RCLog {
		return rc.LogEvent.User
	}
	return rc.Revision.User
}

// Comment returns the summary of the embedded payload.
func (rc *RecentChange) Comment() string {
	if rc.Type == RCLog {
		return rc.LogEvent.Comment
	}
	return rc.Revision.Comment
}

// ProtectionType is the guarded operation of a PageProtection.
type ProtectionType string

const (
	ProtectEdit   ProtectionType = "edit"
	ProtectMove   ProtectionType = "move"
	ProtectUpload ProtectionType = "upload"
	ProtectCreate ProtectionType = "create"
)

// ProtectionLevel is the group required to pass a protection.
type ProtectionLevel string

const (
	LevelNone          ProtectionLevel = ""
	LevelAutoconfirmed ProtectionLevel = "autoconfirmed"
	LevelAutopatrolled ProtectionLevel = "autopatrolled"
	LevelSysop         ProtectionLevel = "sysop"
)

// PageProtection is one protection entry of a page. A null Expiry
// means the protection is infinite.
type PageProtection struct {
	Type   ProtectionType
	Level  ProtectionLevel
	Expiry wikidate.Date
}

// revisionFromJSON fills a Revision from one entry of the API's
// revisions array, plus the enclosing page object for the title.
func revisionFromJSON(title string, page, rev *jsonv.Value) *Revision {
	r := &Revision{
		Title:         title,
		RevID:         rev.Get("revid").Int(0),
		User:          rev.Get("user").Str(),
		UserID:        rev.Get("userid").Int(0),
		Size:          int(rev.Get("size").Int(0)),
		Comment:       rev.Get("comment").Str(),
		ParsedComment: rev.Get("parsedcomment").Str(),
		SHA1:          rev.Get("sha1").Str(),
		ContentModel:  contentModelFromString(rev.Get("contentmodel").Str()),
		Minor:         rev.Get("minor").Bool(),
		ContentHidden: rev.Get("texthidden").Bool(),
	}
	if ts := rev.Get("timestamp").Str(); ts != "" {
		if d, err := wikidate.ParseISO8601(ts); err == nil {
			r.Timestamp = d
		}
	}
	if slots := rev.Get("slots"); slots.Has("main") {
		r.Content = slots.Get("main").Get("content").Str()
	} else if rev.Has("content") {
		r.Content = rev.Get("content").Str()
	}
	tags := rev.Get("tags")
	for i := 0; i < tags.Len(); i++ {
		r.Tags = append(r.Tags, tags.Index(i).Str())
	}
	if page != nil {
		r.New = page.Get("new").Bool()
		r.Redirect = page.Get("redirect").Bool()
	}
	return r
}

func logEventFromJSON(entry *jsonv.Value) *LogEvent {
	ev := &LogEvent{
		LogID:         entry.Get("logid").Int(0),
		Type:          entry.Get("type").Str(),
		Action:        entry.Get("action").Str(),
		Title:         entry.Get("title").Str(),
		User:          entry.Get("user").Str(),
		UserID:        entry.Get("userid").Int(0),
		Comment:       entry.Get("comment").Str(),
		ParsedComment: entry.Get("parsedcomment").Str(),
	}
	if ts := entry.Get("timestamp").Str(); ts != "" {
		if d, err := wikidate.ParseISO8601(ts); err == nil {
			ev.Timestamp = d
		}
	}
	if params := entry.Get("params"); params.Has("target_title") {
		ev.MoveTarget = params.Get("target_title").Str()
		ev.SuppressRedirect = params.Get("suppressredirect").Bool()
	}
	return ev
}

func recentChangeFromJSON(entry *jsonv.Value) (*RecentChange, error) {
	rc := &RecentChange{
		RCID:     entry.Get("rcid").Int(0),
		OldRevID: entry.Get("old_revid").Int(0),
		OldSize:  int(entry.Get("oldlen").Int(0)),
	}
	switch kind := entry.Get("type").Str(); kind {
	case "edit":
		rc.Type = RCEdit
	case "new":
		rc.Type = RCNew
	case "log":
		rc.Type = RCLog
	default:
		return nil, &UnexpectedAPIResponseError{Message: "unknown recentchanges type " + strconv.Quote(kind)}
	}
	if rc.Type == RCLog {
		rc.LogEvent = logEventFromJSON(entry)
		rc.LogEvent.LogID = entry.Get("logid").Int(0)
		rc.LogEvent.Type = entry.Get("logtype").Str()
		rc.LogEvent.Action = entry.Get("logaction").Str()
	} else {
		rev := revisionFromJSON(entry.Get("title").Str(), nil, entry)
		rev.Size = int(entry.Get("newlen").Int(0))
		rev.Bot = entry.Get("bot").Bool()
		rev.New = rc.Type == RCNew
		rc.Revision = rev
	}
	return rc, nil
}
