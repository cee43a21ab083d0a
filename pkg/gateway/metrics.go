package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for gateway operations.
var (
	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobatch_gateway_requests_total",
		Help: "Total photo API requests by operation and status",
	}, []string{"operation", "status"})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photobatch_gateway_request_duration_seconds",
		Help:    "Photo API call duration in seconds by operation, retries included",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	gatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobatch_gateway_errors_total",
		Help: "Total photo API errors by class",
	}, []string{"class"})

	gatewayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobatch_gateway_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	gatewayRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photobatch_gateway_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	gatewayRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobatch_gateway_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)
