// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConflictChecksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsdesk_conflict_checks_total",
		Help: "Number of availability checks issued against the oracle.",
	})

	ConflictCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsdesk_conflict_check_failures_total",
		Help: "Number of oracle calls that failed and degraded to an error row.",
	})

	StaleCheckResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsdesk_conflict_stale_responses_total",
		Help: "Oracle responses discarded because a newer check superseded them.",
	})

	ConflictCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opsdesk_conflict_check_duration_seconds",
		Help:    "Latency of oracle availability checks.",
		Buckets: prometheus.DefBuckets,
	})

	OffersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsdesk_offers_submitted_total",
		Help: "Offers successfully persisted after the final conflict check.",
	})

	SubmissionsBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsdesk_submissions_blocked_total",
		Help: "Submissions refused because shortages remained unresolved.",
	})
)

// Handler exposes the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
