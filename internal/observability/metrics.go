package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Grading run outcomes recorded by the orchestrator.
const (
	OutcomeScored      = "scored"
	OutcomeSkipped     = "skipped"
	OutcomeStale       = "stale"
	OutcomeUnusable    = "unusable"
	OutcomeMissing     = "missing"
	OutcomeMaterialize = "materialize_failed"
	OutcomeStoreError  = "store_error"
	OutcomePanic       = "panic"
)

var (
	registerOnce       sync.Once
	apiRequestsTotal   *prometheus.CounterVec
	apiLatencySeconds  *prometheus.HistogramVec
	apiErrorsTotal     *prometheus.CounterVec
	gradingRunsTotal   *prometheus.CounterVec
	gradingRunSeconds  prometheus.Histogram
	gradingInFlight    prometheus.Gauge
	gradingWaiting     prometheus.Gauge
	gradingStreamConns prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edumark",
			Name:      "api_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edumark",
			Name:      "api_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edumark",
			Name:      "api_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edumark",
			Subsystem: "grading",
			Name:      "runs_total",
			Help:      "Background grading runs partitioned by outcome.",
		}, []string{"outcome"})

		gradingRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edumark",
			Subsystem: "grading",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of background grading runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		})

		gradingInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edumark",
			Subsystem: "grading",
			Name:      "runs_in_flight",
			Help:      "Grading runs currently holding a worker slot.",
		})

		gradingWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edumark",
			Subsystem: "grading",
			Name:      "runs_waiting",
			Help:      "Grading runs scheduled and waiting for a worker slot.",
		})

		gradingStreamConns = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edumark",
			Subsystem: "grading",
			Name:      "stream_clients_active",
			Help:      "Open grading event websocket connections.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			gradingRunsTotal, gradingRunSeconds, gradingInFlight, gradingWaiting, gradingStreamConns,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradingRuns exposes the grading outcome counter.
func GradingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRunsTotal
}

// GradingRunDuration exposes the grading run duration histogram.
func GradingRunDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingRunSeconds
}

// GradingInFlight exposes the gauge of runs holding a worker slot.
func GradingInFlight() prometheus.Gauge {
	RegisterMetrics()
	return gradingInFlight
}

// GradingWaiting exposes the gauge of runs waiting for a worker slot.
func GradingWaiting() prometheus.Gauge {
	RegisterMetrics()
	return gradingWaiting
}

// GradingStreamClients exposes the gauge of open event stream connections.
func GradingStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return gradingStreamConns
}
