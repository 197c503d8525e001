// Package rcreplica reads a local sqlite replica of the wiki's
// recentchanges feed. Bots that scan every change use the replica
// instead of hammering the live API; rows are consumed in rcid order
// and a continue token makes scans resumable across runs.
package rcreplica

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/orlodrim/wikibot/jsonv"
	"github.com/orlodrim/wikibot/metrics"
	"github.com/orlodrim/wikibot/mwclient"
	"github.com/orlodrim/wikibot/wikidate"
)

// continueTokenPrefix tags replica continue tokens so they cannot be
// confused with API continue objects.
const continueTokenPrefix = "rc|"

// FormatContinueToken builds the resume token for the row after rcid.
func FormatContinueToken(rcid int64) string {
	return continueTokenPrefix + strconv.FormatInt(rcid, 10)
}

// ParseContinueToken reverses FormatContinueToken. The empty token
// means "from the beginning" and parses to zero.
func ParseContinueToken(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	rest, found := strings.CutPrefix(token, continueTokenPrefix)
	if !found {
		return 0, fmt.Errorf("parsing continue token %q: missing rc| prefix", token)
	}
	rcid, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing continue token %q: %w", token, err)
	}
	return rcid, nil
}

// Reader reads the recentchanges table of a replica database.
type Reader struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the replica read-only.
func Open(path string, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening replica %s: %w", path, err)
	}
	return &Reader{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (r *Reader) Close() error { return r.db.Close() }

// rcRow mirrors one row of the recentchanges table.
type rcRow struct {
	rcid      int64
	kind      string
	timestamp string
	title     string
	newTitle  sql.NullString
	user      string
	size      sql.NullInt64
	comment   sql.NullString
	revid     sql.NullInt64
	oldRevid  sql.NullInt64
	logid     sql.NullInt64
	logType   sql.NullString
	logAction sql.NullString
	logParams sql.NullString
}

const rcColumns = "rcid, type, timestamp, title, new_title, user, size, comment, revid, old_revid, logid, logtype, logaction, logparams"

func scanRow(rows *sql.Rows) (*rcRow, error) {
	row := &rcRow{}
	err := rows.Scan(&row.rcid, &row.kind, &row.timestamp, &row.title,
		&row.newTitle, &row.user, &row.size, &row.comment,
		&row.revid, &row.oldRevid, &row.logid, &row.logType,
		&row.logAction, &row.logParams)
	if err != nil {
		return nil, fmt.Errorf("scanning recentchanges row: %w", err)
	}
	metrics.ReplicaRows.Inc()
	return row, nil
}

func (row *rcRow) toRecentChange() (*mwclient.RecentChange, error) {
	timestamp, err := wikidate.ParseISO8601(row.timestamp)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", row.rcid, err)
	}
	rc := &mwclient.RecentChange{
		RCID:     row.rcid,
		OldRevID: row.oldRevid.Int64,
	}
	switch row.kind {
	case "edit", "new":
		rc.Type = mwclient.RCEdit
		if row.kind == "new" {
			rc.Type = mwclient.RCNew
		}
		rc.Revision = &mwclient.Revision{
			Title:     row.title,
			RevID:     row.revid.Int64,
			Timestamp: timestamp,
			User:      row.user,
			Size:      int(row.size.Int64),
			Comment:   row.comment.String,
			New:       row.kind == "new",
		}
	case "log":
		ev := &mwclient.LogEvent{
			LogID:     row.logid.Int64,
			Type:      row.logType.String,
			Action:    row.logAction.String,
			Timestamp: timestamp,
			Title:     row.title,
			User:      row.user,
			Comment:   row.comment.String,
		}
		if row.newTitle.Valid && row.newTitle.String != "" {
			ev.MoveTarget = row.newTitle.String
		}
		if row.logParams.Valid && row.logParams.String != "" {
			if params, err := jsonv.Parse(row.logParams.String); err == nil {
				if params.Has("target_title") {
					ev.MoveTarget = params.Get("target_title").Str()
				}
				ev.SuppressRedirect = params.Get("suppressredirect").Bool()
			}
		}
		rc.Type = mwclient.RCLog
		rc.LogEvent = ev
	default:
		return nil, fmt.Errorf("row %d: unknown change type %q", row.rcid, row.kind)
	}
	return rc, nil
}

// ReadChanges returns changes within [start, end] in rcid order,
// starting after the continue token. The returned token resumes after
// the last returned row; it is empty when the window is exhausted.
// A zero limit means no bound.
func (r *Reader) ReadChanges(ctx context.Context, start, end wikidate.Date, continueToken string, limit int) ([]*mwclient.RecentChange, string, error) {
	afterRCID, err := ParseContinueToken(continueToken)
	if err != nil {
		return nil, "", err
	}
	query := "SELECT " + rcColumns + " FROM recentchanges WHERE rcid > ?"
	args := []any{afterRCID}
	if !start.IsNull() {
		query += " AND timestamp >= ?"
		args = append(args, start.ISO8601())
	}
	if !end.IsNull() {
		query += " AND timestamp <= ?"
		args = append(args, end.ISO8601())
	}
	query += " ORDER BY rcid"
	if limit > 0 {
		// One extra row decides whether a continue token is needed.
		query += " LIMIT ?"
		args = append(args, limit+1)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("querying recentchanges: %w", err)
	}
	defer rows.Close()

	var changes []*mwclient.RecentChange
	truncated := false
	for rows.Next() {
		if limit > 0 && len(changes) == limit {
			truncated = true
			break
		}
		row, err := scanRow(rows)
		if err != nil {
			return nil, "", err
		}
		rc, err := row.toRecentChange()
		if err != nil {
			return nil, "", err
		}
		changes = append(changes, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("reading recentchanges: %w", err)
	}
	if !truncated {
		return changes, "", nil
	}
	return changes, FormatContinueToken(changes[len(changes)-1].RCID), nil
}

// GetRecentlyUpdatedPages returns the distinct titles edited or
// created within [start, end], excluding changes by excludedUser.
func (r *Reader) GetRecentlyUpdatedPages(ctx context.Context, start, end wikidate.Date, excludedUser string) ([]string, error) {
	query := "SELECT DISTINCT title FROM recentchanges WHERE type IN ('edit', 'new')"
	var args []any
	if !start.IsNull() {
		query += " AND timestamp >= ?"
		args = append(args, start.ISO8601())
	}
	if !end.IsNull() {
		query += " AND timestamp <= ?"
		args = append(args, end.ISO8601())
	}
	if excludedUser != "" {
		query += " AND user != ?"
		args = append(args, excludedUser)
	}
	query += " ORDER BY title"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying updated pages: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		metrics.ReplicaRows.Inc()
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading updated pages: %w", err)
	}
	return titles, nil
}

// GetRecentLogEvents returns log entries within [start, end] in rcid
// order, optionally restricted to one log type, resuming after the
// continue token. The returned token is never empty so scans can poll
// a growing replica; pass it back to get only newer entries.
func (r *Reader) GetRecentLogEvents(ctx context.Context, logType string, start, end wikidate.Date, continueToken string) ([]*mwclient.LogEvent, string, error) {
	afterRCID, err := ParseContinueToken(continueToken)
	if err != nil {
		return nil, "", err
	}
	query := "SELECT " + rcColumns + " FROM recentchanges WHERE rcid > ? AND type = 'log'"
	args := []any{afterRCID}
	if logType != "" {
		query += " AND logtype = ?"
		args = append(args, logType)
	}
	if !start.IsNull() {
		query += " AND timestamp >= ?"
		args = append(args, start.ISO8601())
	}
	if !end.IsNull() {
		query += " AND timestamp <= ?"
		args = append(args, end.ISO8601())
	}
	query += " ORDER BY rcid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("querying log events: %w", err)
	}
	defer rows.Close()

	lastRCID := afterRCID
	var events []*mwclient.LogEvent
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, "", err
		}
		rc, err := row.toRecentChange()
		if err != nil {
			return nil, "", err
		}
		events = append(events, rc.LogEvent)
		lastRCID = rc.RCID
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("reading log events: %w", err)
	}
	return events, FormatContinueToken(lastRCID), nil
}
