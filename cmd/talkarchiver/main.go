// Talk-page archiver bot. Moves old threads of the configured talk
// pages to their archive subpages, following the per-page
// {{Archivage par bot}} configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orlodrim/wikibot/archiver"
	"github.com/orlodrim/wikibot/httpx"
	"github.com/orlodrim/wikibot/mwclient"
	"github.com/orlodrim/wikibot/tracing"
)

func main() {
	pages := flag.String("pages", "", "comma-separated talk pages to archive")
	category := flag.String("category", "", "archive every member of this category")
	dryRun := flag.Bool("dry-run", false, "log diffs instead of writing")
	stableCache := flag.String("stable-cache", "", "file remembering revids of pages that needed no archiving")
	sessionFile := flag.String("session", "", "file persisting the login session across runs")
	key := flag.String("key", "", "shared secret for configurations archiving outside their own subpages")
	stopPage := flag.String("stop-page", "", "wiki page that halts all writes when non-empty")
	httpCacheDir := flag.String("http-cache-dir", "", "record API responses in this directory")
	httpCacheReplay := flag.Bool("http-cache-replay", false, "serve API responses from the cache without network access")
	legacyLogin := flag.Bool("legacy-login", true, "use action=login (required for bot passwords)")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	apiURL := os.Getenv("WIKIBOT_API_URL")
	userName := os.Getenv("WIKIBOT_USERNAME")
	password := os.Getenv("WIKIBOT_PASSWORD")
	if apiURL == "" || userName == "" || password == "" {
		log.Fatal("WIKIBOT_API_URL, WIKIBOT_USERNAME and WIKIBOT_PASSWORD must be set")
	}
	if *pages == "" && *category == "" {
		log.Fatal("one of -pages or -category is required")
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	var transport httpx.Transport = httpx.NewClient(httpx.Options{Logger: logger})
	if *httpCacheDir != "" {
		mode := httpx.CacheRecord
		if *httpCacheReplay {
			mode = httpx.CacheReplay
		}
		transport, err = httpx.NewCachingTransport(transport, *httpCacheDir, mode)
		if err != nil {
			log.Fatalf("Failed to set up the HTTP cache: %v", err)
		}
	}

	var client *mwclient.Client
	client = mwclient.NewClient(apiURL, mwclient.ClientOptions{
		Transport:   transport,
		Logger:      logger,
		SessionFile: *sessionFile,
		EmergencyStop: func(ctx context.Context) bool {
			return stopRequested(ctx, client, logger, *stopPage)
		},
	})
	err = client.Login(ctx, mwclient.LoginParams{
		UserName:       userName,
		Password:       password,
		UseLegacyLogin: *legacyLogin,
		OTPPrompt:      mwclient.TerminalOTPPrompt,
	})
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	arch, err := archiver.New(client, archiver.Options{
		Logger:          logger,
		Key:             *key,
		DryRun:          *dryRun,
		StableCachePath: *stableCache,
	})
	if err != nil {
		log.Fatalf("Failed to set up the archiver: %v", err)
	}

	titles, err := collectTitles(ctx, client, *pages, *category)
	if err != nil {
		log.Fatalf("Failed to list pages: %v", err)
	}
	logger.Info("starting archiver run", "pages", len(titles), "dry_run", *dryRun)

	failures := 0
	for _, title := range titles {
		pageCtx, span := tracing.StartSpan(ctx, "archive_page")
		tracing.AddTaskAttributes(span, "talkarchiver", apiURL)
		tracing.AddPageAttributes(span, title)
		result, err := arch.Run(pageCtx, title)
		tracing.RecordError(span, err)
		span.End()
		if err != nil {
			var stop *mwclient.EmergencyStopError
			if errors.As(err, &stop) {
				logger.Error("emergency stop requested, aborting", "page", title)
				break
			}
			// One broken page must not block the rest of the batch.
			failures++
			logger.Error("archiving failed", "page", title, "error", err)
			continue
		}
		if result.Skipped {
			logger.Debug("page unchanged since last run", "page", title)
		}
	}

	if err := arch.SaveCache(); err != nil {
		logger.Error("saving the stable cache failed", "error", err)
	}
	if failures > 0 {
		logger.Warn("run finished with failures", "failures", failures)
		os.Exit(1)
	}
}

// collectTitles merges the -pages list with the category members.
func collectTitles(ctx context.Context, client *mwclient.Client, pages, category string) ([]string, error) {
	var titles []string
	for _, title := range strings.Split(pages, ",") {
		if title = strings.TrimSpace(title); title != "" {
			titles = append(titles, title)
		}
	}
	if category != "" {
		members, err := client.GetCategoryMembers(ctx, category, nil, mwclient.PagerAll)
		if err != nil {
			return nil, err
		}
		titles = append(titles, members...)
	}
	return titles, nil
}

// stopRequested reads the emergency-stop page; any content on it halts
// all writes.
func stopRequested(ctx context.Context, client *mwclient.Client, logger *slog.Logger, stopPage string) bool {
	if stopPage == "" {
		return false
	}
	rev, err := client.ReadPage(ctx, stopPage, mwclient.RPContent)
	if err != nil {
		var notFound *mwclient.PageNotFoundError
		if errors.As(err, &notFound) {
			return false
		}
		// When in doubt, stop writing.
		logger.Error("reading the stop page failed", "page", stopPage, "error", err)
		return true
	}
	return strings.TrimSpace(rev.Content) != ""
}
