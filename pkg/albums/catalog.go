package albums

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/photo-batch-client/pkg/cache"
)

// Catalog provides a point-in-time list of canonical albums.
// The order of the returned slice is the tie-break order for Reconcile.
type Catalog interface {
	Snapshot(ctx context.Context) ([]Album, error)
}

// StaticCatalog is a fixed, in-memory catalog.
type StaticCatalog []Album

// Snapshot returns a copy of the catalog.
func (c StaticCatalog) Snapshot(context.Context) ([]Album, error) {
	return slices.Clone([]Album(c)), nil
}

// ListResult is the answer of a Source to a (possibly conditional) list request.
type ListResult struct {
	Albums      []Album
	ETag        string
	NotModified bool
}

// Source loads the album list from the photo service.
// A non-empty etag asks the source to answer NotModified if nothing changed.
type Source interface {
	ListAlbums(ctx context.Context, etag string) (*ListResult, error)
}

// Tracker is notified around every network call made on behalf of the catalog.
type Tracker interface {
	Start()
	End()
}

// CachedCatalogConfig configures a CachedCatalog.
type CachedCatalogConfig struct {
	// Source is queried when the cached snapshot is missing or stale (required)
	Source Source

	// Cache stores snapshots in Redis; nil disables caching
	Cache *cache.Manager

	// Key identifies the snapshot in the cache
	Key cache.Key

	// TTL is how long a snapshot is served without revalidation
	TTL time.Duration

	// Tracker is bracketed around source calls; may be nil
	Tracker Tracker

	Logger zerolog.Logger
}

// DefaultCachedCatalogConfig returns a configuration for the album catalog.
func DefaultCachedCatalogConfig(source Source, manager *cache.Manager) CachedCatalogConfig {
	return CachedCatalogConfig{
		Source: source,
		Cache:  manager,
		Key: cache.Key{
			Namespace: "catalog",
			Name:      "albums",
			Params:    map[string]string{"type": "album"},
		},
		TTL:    2 * time.Minute,
		Logger: zerolog.Nop(),
	}
}

// CachedCatalog serves album snapshots from Redis and refreshes them from the
// source, revalidating with the stored ETag. Concurrent refreshes share one
// source call.
type CachedCatalog struct {
	config CachedCatalogConfig
	group  singleflight.Group
}

// NewCachedCatalog creates a new cached catalog.
func NewCachedCatalog(cfg CachedCatalogConfig) (*CachedCatalog, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("catalog source is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("catalog ttl must be positive (got %s)", cfg.TTL)
	}
	cfg.Logger = cfg.Logger.With().Str("catalog", cfg.Key.String()).Logger()

	return &CachedCatalog{config: cfg}, nil
}

// Snapshot returns the current album list.
// Cache failures are logged and fall back to the source.
func (c *CachedCatalog) Snapshot(ctx context.Context) ([]Album, error) {
	if c.config.Cache != nil {
		entry, err := c.config.Cache.Get(ctx, c.config.Key)
		switch {
		case err == nil:
			albums, decodeErr := decodeAlbums(entry.Data)
			if decodeErr == nil {
				return albums, nil
			}
			c.config.Logger.Warn().Err(decodeErr).Msg("Discarding undecodable catalog entry")
		case !errors.Is(err, cache.ErrCacheMiss):
			c.config.Logger.Warn().Err(err).Msg("Catalog cache get error")
		}
	}

	v, err, shared := c.group.Do(c.config.Key.String(), func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.config.Logger.Debug().Msg("Shared in-flight catalog refresh")
	}

	return slices.Clone(v.([]Album)), nil
}

// Invalidate drops the cached snapshot, e.g. after a save created albums.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	if c.config.Cache == nil {
		return nil
	}
	return c.config.Cache.Delete(ctx, c.config.Key)
}

func (c *CachedCatalog) refresh(ctx context.Context) ([]Album, error) {
	var stale *cache.Entry
	if c.config.Cache != nil {
		entry, err := c.config.Cache.Peek(ctx, c.config.Key)
		if err == nil {
			stale = entry
		}
	}

	etag := ""
	if stale.CanRevalidate() {
		etag = stale.ETag
	}

	if c.config.Tracker != nil {
		c.config.Tracker.Start()
		defer c.config.Tracker.End()
	}

	start := time.Now()
	result, err := c.config.Source.ListAlbums(ctx, etag)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}

	if result.NotModified && stale != nil {
		albums, err := decodeAlbums(stale.Data)
		if err == nil {
			if err := c.config.Cache.Extend(ctx, c.config.Key, stale, time.Now().Add(c.config.TTL)); err != nil {
				c.config.Logger.Warn().Err(err).Msg("Failed to extend catalog entry")
			}
			c.config.Logger.Debug().
				Str("etag", etag).
				Dur("duration", time.Since(start)).
				Msg("Catalog not modified")
			return albums, nil
		}
		// The stale payload is unusable; fetch unconditionally.
		result, err = c.config.Source.ListAlbums(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list albums: %w", err)
		}
	}

	albums := slices.Clone(result.Albums)
	if albums == nil {
		albums = []Album{}
	}

	if c.config.Cache != nil {
		data, err := json.Marshal(albums)
		if err != nil {
			return nil, fmt.Errorf("encode albums: %w", err)
		}
		if err := c.config.Cache.Set(ctx, c.config.Key, cache.NewEntry(data, result.ETag, c.config.TTL)); err != nil {
			c.config.Logger.Warn().Err(err).Msg("Failed to cache catalog")
		}
	}

	c.config.Logger.Debug().
		Int("albums", len(albums)).
		Dur("duration", time.Since(start)).
		Msg("Catalog refreshed")

	return albums, nil
}

func decodeAlbums(data []byte) ([]Album, error) {
	var albums []Album
	if err := json.Unmarshal(data, &albums); err != nil {
		return nil, fmt.Errorf("decode albums: %w", err)
	}
	return albums, nil
}
