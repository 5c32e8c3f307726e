// Package metrics holds the Prometheus collectors shared by the store, the
// pipeline and the dashboard. Labels stay low-cardinality: document keys,
// platforms, outcome kinds and registered route patterns only.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StoreMutations counts Mutate calls by document and result (ok, aborted, write_error).
	StoreMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promobot_store_mutations_total",
			Help: "Store mutations by document and result.",
		},
		[]string{"document", "result"},
	)

	// StoreWriteSeconds measures encode + backup + atomic replace.
	StoreWriteSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promobot_store_write_seconds",
			Help:    "Duration of committed document writes.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"document"},
	)

	// StoreRecoveries counts primary decode failures by outcome (backup, default).
	StoreRecoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promobot_store_recoveries_total",
			Help: "Documents recovered after a failed decode.",
		},
		[]string{"document", "outcome"},
	)

	// BackupsPruned counts backups removed by age.
	BackupsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promobot_backups_pruned_total",
			Help: "Backups deleted by the age based pruner.",
		},
	)

	// RateLimited counts rejections by limiter (inbound, outbound).
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promobot_rate_limited_total",
			Help: "Actions rejected by a rate limiter.",
		},
		[]string{"limiter"},
	)

	// PostAttempts counts every publish call including retries.
	PostAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promobot_post_attempts_total",
			Help: "Publish calls sent to a platform, retries included.",
		},
		[]string{"platform"},
	)

	// PostOutcomes counts final per-target outcomes.
	PostOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promobot_post_outcomes_total",
			Help: "Final distribution outcomes by platform and status.",
		},
		[]string{"platform", "status"},
	)

	// Generations counts text generation calls by result kind.
	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promobot_generations_total",
			Help: "Text generation requests by result.",
		},
		[]string{"result"},
	)

	// HTTPRequests counts dashboard requests by route pattern and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promobot_http_requests_total",
			Help: "Dashboard HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// AccessDenied counts dashboard requests refused by an access filter (cidr, host).
	AccessDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promobot_http_access_denied_total",
			Help: "Dashboard requests refused by network or host filters.",
		},
		[]string{"filter"},
	)

	// HTTPSeconds measures dashboard request latency.
	HTTPSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promobot_http_request_duration_seconds",
			Help:    "Dashboard request duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		StoreMutations,
		StoreWriteSeconds,
		StoreRecoveries,
		BackupsPruned,
		RateLimited,
		PostAttempts,
		PostOutcomes,
		Generations,
		HTTPRequests,
		AccessDenied,
		HTTPSeconds,
	)
}
