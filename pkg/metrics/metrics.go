// Package metrics exposes the Prometheus metrics of the photo batch client.
// The metrics themselves are defined in their packages (gateway, cache,
// activity, batch) to avoid circular dependencies; this package serves them.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server exposing /metrics and /health on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Metrics Documentation
//
// Gateway Metrics (pkg/gateway):
//   - photobatch_gateway_requests_total{operation, status} (Counter): Requests by operation and HTTP status
//   - photobatch_gateway_request_duration_seconds{operation} (Histogram): Call duration, retries included
//   - photobatch_gateway_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - photobatch_gateway_retries_total{error_class} (Counter): Retry attempts by error class
//   - photobatch_gateway_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - photobatch_gateway_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - photobatch_cache_hits_total{namespace} (Counter): Fresh cache hits
//   - photobatch_cache_misses_total{namespace} (Counter): Cache misses and expired entries
//   - photobatch_cache_revalidations_total{namespace} (Counter): Entries extended after 304 Not Modified
//   - photobatch_cache_errors_total{operation} (Counter): Redis errors by operation
//
// Activity Metrics (pkg/activity):
//   - photobatch_activity_in_flight (Gauge): Outstanding network operations
//   - photobatch_activity_starts_total (Counter): Started operations
//   - photobatch_activity_unbalanced_ends_total (Counter): End calls without a matching Start
//   - photobatch_activity_mirror_dropped_total (Counter): Signals dropped by a full mirror queue
//   - photobatch_activity_mirror_errors_total (Counter): Failed Redis mirror writes
//
// Editor Metrics (pkg/batch):
//   - photobatch_editor_operations_total{operation, outcome} (Counter): Load/save by outcome
//
// Example Prometheus Queries:
//
//   # Catalog Cache Hit Rate
//   sum(rate(photobatch_cache_hits_total[5m])) /
//   (sum(rate(photobatch_cache_hits_total[5m])) + sum(rate(photobatch_cache_misses_total[5m])))
//
//   # Save Failure Rate
//   rate(photobatch_editor_operations_total{operation="save",outcome="error"}[5m])
//
//   # P95 Gateway Latency
//   histogram_quantile(0.95, rate(photobatch_gateway_request_duration_seconds_bucket[5m]))
