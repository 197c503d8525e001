// Recent-changes scanner. Reads the local sqlite replica of the
// recentchanges feed and prints the pages updated since the last run,
// so other bots can process only what changed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/orlodrim/wikibot/mwclient"
	"github.com/orlodrim/wikibot/rcreplica"
	"github.com/orlodrim/wikibot/tracing"
	"github.com/orlodrim/wikibot/wikidate"
)

func main() {
	replicaPath := flag.String("replica", "", "path of the recentchanges sqlite replica")
	statePath := flag.String("state", "", "file persisting the continue token across runs")
	mode := flag.String("mode", "pages", "what to print: pages, changes or logs")
	logType := flag.String("log-type", "", "with -mode=logs, restrict to one log type (move, delete, ...)")
	excludeUser := flag.String("exclude-user", "", "with -mode=pages, ignore changes by this user")
	window := flag.Duration("window", 24*time.Hour, "how far back to scan")
	prefix := flag.String("prefix", "", "only print titles with this prefix")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *replicaPath == "" {
		log.Fatal("-replica is required")
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	reader, err := rcreplica.Open(*replicaPath, logger)
	if err != nil {
		log.Fatalf("Failed to open the replica: %v", err)
	}
	defer reader.Close()

	end := wikidate.FromTime(time.Now())
	start := end.Add(-wikidate.DateDiff(window.Seconds()))
	token := loadToken(logger, *statePath)

	scanCtx, span := tracing.StartSpan(ctx, "rc_scan")
	tracing.AddTaskAttributes(span, "rcscan", *replicaPath)
	defer span.End()

	switch *mode {
	case "pages":
		titles, err := reader.GetRecentlyUpdatedPages(scanCtx, start, end, *excludeUser)
		if err != nil {
			tracing.RecordError(span, err)
			log.Fatalf("Scan failed: %v", err)
		}
		printed := 0
		for _, title := range titles {
			if *prefix != "" && !strings.HasPrefix(title, *prefix) {
				continue
			}
			fmt.Println(title)
			printed++
		}
		logger.Info("scan finished", "mode", *mode, "pages", printed)
	case "changes":
		count := 0
		for {
			changes, next, err := reader.ReadChanges(scanCtx, start, end, token, 500)
			if err != nil {
				tracing.RecordError(span, err)
				log.Fatalf("Scan failed: %v", err)
			}
			for _, rc := range changes {
				printChange(rc, *prefix)
				count++
			}
			if next == "" {
				break
			}
			token = next
		}
		logger.Info("scan finished", "mode", *mode, "changes", count)
	case "logs":
		events, next, err := reader.GetRecentLogEvents(scanCtx, *logType, start, end, token)
		if err != nil {
			tracing.RecordError(span, err)
			log.Fatalf("Scan failed: %v", err)
		}
		for _, ev := range events {
			if *prefix != "" && !strings.HasPrefix(ev.Title, *prefix) {
				continue
			}
			line := fmt.Sprintf("%s\t%s/%s\t%s", ev.Timestamp.ISO8601(), ev.Type, ev.Action, ev.Title)
			if ev.MoveTarget != "" {
				line += "\t-> " + ev.MoveTarget
			}
			fmt.Println(line)
		}
		saveToken(logger, *statePath, next)
		logger.Info("scan finished", "mode", *mode, "events", len(events))
	default:
		log.Fatalf("Unknown mode %q", *mode)
	}
}

func printChange(rc *mwclient.RecentChange, prefix string) {
	var title, user, what string
	switch rc.Type {
	case mwclient.RCLog:
		title = rc.LogEvent.Title
		user = rc.LogEvent.User
		what = rc.LogEvent.Type + "/" + rc.LogEvent.Action
	default:
		title = rc.Revision.Title
		user = rc.Revision.User
		what = "edit"
		if rc.Type == mwclient.RCNew {
			what = "new"
		}
	}
	if prefix != "" && !strings.HasPrefix(title, prefix) {
		return
	}
	fmt.Printf("%d\t%s\t%s\t%s\n", rc.RCID, what, title, user)
}

// loadToken reads the persisted continue token; a missing file means
// "scan from the beginning of the window".
func loadToken(logger *slog.Logger, path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		logger.Error("reading the state file failed", "file", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveToken(logger *slog.Logger, path, token string) {
	if path == "" || token == "" {
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o644); err != nil {
		logger.Error("writing the state file failed", "file", path, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Error("replacing the state file failed", "file", path, "error", err)
	}
}
