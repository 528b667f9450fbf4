package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts calls to the radar API by operation and status class.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_upstream_requests_total",
		Help: "Total number of requests issued to the radar API",
	}, []string{"operation", "status"})

	// UpstreamLatency records radar API call latency by operation.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radar_upstream_latency_seconds",
		Help:    "Latency of radar API calls in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// SessionTransitions counts session state machine transitions by kind.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_session_transitions_total",
		Help: "Total number of session state transitions",
	}, []string{"transition"})

	// SessionStoreErrors counts session store failures by operation.
	SessionStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_session_store_errors_total",
		Help: "Total number of session store errors by operation",
	}, []string{"operation"})
)

// ObserveUpstream records one radar API call.
func ObserveUpstream(operation, status string, start time.Time) {
	UpstreamRequests.WithLabelValues(operation, status).Inc()
	UpstreamLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordSessionTransition increments the transition counter.
func RecordSessionTransition(transition string) {
	SessionTransitions.WithLabelValues(transition).Inc()
}

// RecordSessionStoreError increments the store error counter.
func RecordSessionStoreError(operation string) {
	SessionStoreErrors.WithLabelValues(operation).Inc()
}
