// Package cache provides a Redis-backed store for catalog snapshots.
//
// Entries carry an expiry and an optional ETag. Fresh entries are served
// directly; expired entries are retained for StaleRetention so the caller
// can revalidate them with a conditional request instead of downloading the
// full payload again.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Namespace: "catalog",
//		Name:      "albums",
//		Params:    map[string]string{"type": "album"},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		stale, _ := manager.Peek(ctx, key)
//		if stale.CanRevalidate() {
//			// send If-None-Match: stale.ETag
//		}
//	}
//
// # Metrics
//
//   - photobatch_cache_hits_total{namespace}
//   - photobatch_cache_misses_total{namespace}
//   - photobatch_cache_revalidations_total{namespace}
//   - photobatch_cache_errors_total{operation}
package cache
