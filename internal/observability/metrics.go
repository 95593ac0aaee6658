// Package observability provides Prometheus metrics, HTTP middleware and the
// process logger.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ExecutionBuckets spans quick in-process scripts up to container runs that hit
// the default deadline.
var ExecutionBuckets = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	// ExecutionsTotal counts sandbox executions by language and outcome.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabrun_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"language", "outcome"},
	)

	// ExecutionDuration records sandbox wall time in seconds.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabrun_execution_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"language"},
	)

	// NormalizationFailuresTotal counts payloads rejected by the normalizer.
	NormalizationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabrun_normalization_failures_total",
			Help: "Normalization failures",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal counts HTTP requests by path and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabrun_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ExecutionsTotal,
		ExecutionDuration,
		NormalizationFailuresTotal,
		HTTPRequestsTotal,
	)
}
