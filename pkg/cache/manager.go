package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// StaleRetention is how long an expired entry stays in Redis so it can still
// be revalidated with its ETag.
const StaleRetention = 1 * time.Hour

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis redis.Cmdable
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient redis.Cmdable) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get retrieves a fresh cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	entry, err := m.Peek(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.WithLabelValues(key.Namespace).Inc()
		}
		return nil, err
	}

	if entry.IsExpired() {
		CacheMisses.WithLabelValues(key.Namespace).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(key.Namespace).Inc()
	return entry, nil
}

// Peek retrieves a cache entry whether or not it has expired.
// Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Peek(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// Redis drops the entry StaleRetention after it expires.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl+StaleRetention).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Extend moves the expiry of an existing entry, e.g. after the upstream
// service confirmed the cached payload is still current.
// Unlike Get, Extend accepts an entry that has already expired.
func (m *Manager) Extend(ctx context.Context, key Key, entry *Entry, newExpires time.Time) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	updated := *entry
	updated.Expires = newExpires
	if err := m.Set(ctx, key, &updated); err != nil {
		return err
	}

	*entry = updated
	CacheRevalidations.WithLabelValues(key.Namespace).Inc()
	return nil
}
