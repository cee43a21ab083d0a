package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by namespace
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobatch_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"namespace"},
	)

	// CacheMisses tracks cache misses (absent or expired entries) by namespace
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobatch_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	// CacheRevalidations tracks entries whose TTL was extended after a not-modified refresh
	CacheRevalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobatch_cache_revalidations_total",
			Help: "Total number of cache entries revalidated without a payload change",
		},
		[]string{"namespace"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobatch_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
