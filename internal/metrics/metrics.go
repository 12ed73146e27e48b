// README: Prometheus collectors for the HTTP surface, the sequencer, merges and the scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripmerge_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripmerge_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripmerge_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	OptimizerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripmerge_optimizer_requests_total",
			Help: "Route optimizer calls by outcome (ok, error).",
		},
		[]string{"outcome"},
	)

	OptimizerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripmerge_optimizer_request_duration_seconds",
			Help:    "Route optimizer latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	SequencesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripmerge_sequences_total",
			Help: "Computed stop sequences by strategy.",
		},
		[]string{"strategy"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripmerge_operations_total",
			Help: "Merge engine operations by name and result kind.",
		},
		[]string{"operation", "result"},
	)

	EligibilityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripmerge_eligibility_rejections_total",
			Help: "Candidates rejected during batch evaluation, by failed checkpoint.",
		},
		[]string{"checkpoint"},
	)

	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripmerge_automerge_ticks_total",
			Help: "Auto-merge scheduler ticks by outcome (ran, disabled, error).",
		},
		[]string{"outcome"},
	)

	SchedulerMarkers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripmerge_automerge_markers_total",
			Help: "Merge-eligible markers written by the scheduler.",
		},
	)

	SchedulerGroups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripmerge_automerge_groups_total",
			Help: "Auto-merge groups by outcome (merged, failed).",
		},
		[]string{"outcome"},
	)
)

// TrackOptimizer records one call to the route optimizer.
func TrackOptimizer(err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	OptimizerRequests.WithLabelValues(outcome).Inc()
	OptimizerDuration.Observe(d.Seconds())
}

// TrackOperation records a merge engine operation. result is "ok" or an error kind name.
func TrackOperation(operation, result string) {
	OperationsTotal.WithLabelValues(operation, result).Inc()
}
