// Package metrics provides Prometheus metrics for the wiki bots. It
// tracks API request counts, latencies, retries, edit operations and
// archiver activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const (
	Namespace = "wikibot"
)

var (
	// APIRequests counts MediaWiki API requests by action and status
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "api_requests_total",
		Help:      "Total MediaWiki API requests by action and status",
	}, []string{"action", "status"})

	// APILatency measures API call latency by action
	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "api_latency_seconds",
		Help:      "MediaWiki API call latency by action",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	// APIRetries counts API request retries by action
	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "api_retries_total",
		Help:      "MediaWiki API retry count by action",
	}, []string{"action"})

	// EditOperations counts write operations by type and status
	EditOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "edit_operations_total",
		Help:      "Edit operations by type and status",
	}, []string{"operation", "status"})

	// EditWaits measures time spent waiting between edits
	EditWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "edit_wait_seconds_total",
		Help:      "Total time spent in the delay between edits",
	})

	// AuthFailures counts authentication failures by reason
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "auth_failures_total",
		Help:      "Authentication failure count by reason",
	}, []string{"reason"})

	// TokenInvalidations counts badtoken cache invalidations
	TokenInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "token_invalidations_total",
		Help:      "Token cache invalidations after badtoken errors",
	})

	// PagerRequests counts pager round-trips by list name
	PagerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pager_requests_total",
		Help:      "Pager round-trips by API list name",
	}, []string{"list"})

	// ThreadsArchived counts archiver thread outcomes
	ThreadsArchived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "threads_archived_total",
		Help:      "Talk-page threads archived or erased",
	}, []string{"outcome"})

	// PagesSkippedStable counts pages skipped via the stable-revid cache
	PagesSkippedStable = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pages_skipped_stable_total",
		Help:      "Pages skipped because their revid was known stable",
	})

	// ReplicaRows counts rows read from the recent-changes replica
	ReplicaRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "replica_rows_total",
		Help:      "Rows read from the recentchanges sqlite replica",
	})
)

// RecordEdit records a completed write operation.
func RecordEdit(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	EditOperations.WithLabelValues(operation, status).Inc()
}
