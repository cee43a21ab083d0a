package albums

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/photo-batch-client/pkg/cache"
)

type fakeSource struct {
	mu       sync.Mutex
	albums   []Album
	etag     string
	err      error
	calls    int
	lastETag string
	delay    time.Duration
}

func (s *fakeSource) ListAlbums(_ context.Context, etag string) (*ListResult, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastETag = etag

	if s.err != nil {
		return nil, s.err
	}
	if etag != "" && etag == s.etag {
		return &ListResult{ETag: s.etag, NotModified: true}, nil
	}
	return &ListResult{Albums: append([]Album(nil), s.albums...), ETag: s.etag}, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingTracker struct {
	started, ended atomic.Int32
}

func (c *countingTracker) Start() { c.started.Add(1) }
func (c *countingTracker) End()   { c.ended.Add(1) }

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestStaticCatalog_Snapshot(t *testing.T) {
	catalog := StaticCatalog{{ID: "a1", Title: "Trips"}}

	got, err := catalog.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	got[0].Title = "changed"

	if catalog[0].Title != "Trips" {
		t.Error("Snapshot must return a copy")
	}
}

func TestNewCachedCatalog_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  CachedCatalogConfig
		wantErr bool
	}{
		{name: "valid", config: DefaultCachedCatalogConfig(&fakeSource{}, nil)},
		{name: "missing source", config: DefaultCachedCatalogConfig(nil, nil), wantErr: true},
		{
			name: "zero ttl",
			config: CachedCatalogConfig{
				Source: &fakeSource{},
				Logger: zerolog.Nop(),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCachedCatalog(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCachedCatalog() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCachedCatalog_WithoutCache(t *testing.T) {
	source := &fakeSource{albums: []Album{{ID: "a1", Title: "Trips"}}}
	tracker := &countingTracker{}

	cfg := DefaultCachedCatalogConfig(source, nil)
	cfg.Tracker = tracker
	catalog, err := NewCachedCatalog(cfg)
	if err != nil {
		t.Fatalf("NewCachedCatalog failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := catalog.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if !reflect.DeepEqual(got, source.albums) {
			t.Errorf("Snapshot = %v, want %v", got, source.albums)
		}
	}

	if source.callCount() != 2 {
		t.Errorf("source calls = %d, want 2 without a cache", source.callCount())
	}
	if tracker.started.Load() != 2 || tracker.ended.Load() != 2 {
		t.Errorf("tracker start/end = %d/%d, want 2/2", tracker.started.Load(), tracker.ended.Load())
	}
}

func TestCachedCatalog_SourceError(t *testing.T) {
	wantErr := errors.New("boom")
	source := &fakeSource{err: wantErr}
	tracker := &countingTracker{}

	cfg := DefaultCachedCatalogConfig(source, nil)
	cfg.Tracker = tracker
	catalog, _ := NewCachedCatalog(cfg)

	if _, err := catalog.Snapshot(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Snapshot error = %v, want %v", err, wantErr)
	}
	if tracker.started.Load() != tracker.ended.Load() {
		t.Errorf("unbalanced tracker: %d starts, %d ends", tracker.started.Load(), tracker.ended.Load())
	}
}

func TestCachedCatalog_SharesConcurrentRefresh(t *testing.T) {
	source := &fakeSource{albums: []Album{{ID: "a1", Title: "Trips"}}, delay: 50 * time.Millisecond}
	catalog, _ := NewCachedCatalog(DefaultCachedCatalogConfig(source, nil))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := catalog.Snapshot(context.Background()); err != nil {
				t.Errorf("Snapshot failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := source.callCount(); calls >= 5 {
		t.Errorf("source calls = %d, expected concurrent refreshes to be shared", calls)
	}
}

func TestCachedCatalog_RedisRevalidation(t *testing.T) {
	manager := cache.NewManager(setupTestRedis(t))
	source := &fakeSource{albums: []Album{{ID: "a1", Title: "Trips"}}, etag: `"v1"`}

	cfg := DefaultCachedCatalogConfig(source, manager)
	cfg.TTL = 100 * time.Millisecond
	catalog, err := NewCachedCatalog(cfg)
	if err != nil {
		t.Fatalf("NewCachedCatalog failed: %v", err)
	}
	ctx := context.Background()

	if _, err := catalog.Snapshot(ctx); err != nil {
		t.Fatalf("first Snapshot failed: %v", err)
	}
	if _, err := catalog.Snapshot(ctx); err != nil {
		t.Fatalf("cached Snapshot failed: %v", err)
	}
	if source.callCount() != 1 {
		t.Fatalf("source calls = %d, want 1 while cached", source.callCount())
	}

	time.Sleep(150 * time.Millisecond)

	got, err := catalog.Snapshot(ctx)
	if err != nil {
		t.Fatalf("revalidated Snapshot failed: %v", err)
	}
	if source.callCount() != 2 {
		t.Errorf("source calls = %d, want 2 after expiry", source.callCount())
	}
	if source.lastETag != `"v1"` {
		t.Errorf("revalidation sent etag %q, want %q", source.lastETag, `"v1"`)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Errorf("Snapshot after 304 = %v, want cached albums", got)
	}

	if err := catalog.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := catalog.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot after Invalidate failed: %v", err)
	}
	if source.lastETag != "" {
		t.Errorf("fetch after Invalidate sent etag %q, want none", source.lastETag)
	}
}
