package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Persisted transaction status transitions.",
	}, []string{"from", "to"})

	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_requests_total",
		Help: "Calls made to the payment gateway by outcome.",
	}, []string{"operation", "outcome"})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	staleRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_stale_state_retries_total",
		Help: "Compare-and-update conflicts retried by the orchestrator.",
	}, []string{"operation"})
)

func RecordTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveGatewayCall records one gateway round trip. outcome is "ok" or an error code.
func ObserveGatewayCall(operation, outcome string, elapsed time.Duration) {
	gatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	gatewayRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func RecordStaleRetry(operation string) {
	staleRetriesTotal.WithLabelValues(operation).Inc()
}
