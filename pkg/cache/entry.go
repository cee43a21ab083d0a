package cache

import (
	"time"
)

// Entry is a cached payload together with its revalidation metadata.
type Entry struct {
	// Data is the encoded payload (JSON)
	Data []byte `json:"data"`

	// ETag reported by the upstream service, used for If-None-Match revalidation
	ETag string `json:"etag,omitempty"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry that expires after ttl.
func NewEntry(data []byte, etag string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:     data,
		ETag:     etag,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// CanRevalidate reports whether the entry carries an ETag for a conditional refresh.
func (e *Entry) CanRevalidate() bool {
	return e != nil && e.ETag != ""
}
