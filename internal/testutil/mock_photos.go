// Package testutil provides testing utilities for the photo batch client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"time"

	"github.com/Sternrassler/photo-batch-client/pkg/albums"
	"github.com/Sternrassler/photo-batch-client/pkg/batch"
)

// API paths served by MockPhotos.
const (
	BatchEditPath = "/api/v1/batch/photos/edit"
	AlbumsPath    = "/api/v1/albums"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPhotos is an in-memory photo service for testing. It serves the batch
// edit and album list endpoints; canned responses can override either.
type MockPhotos struct {
	server *httptest.Server

	mu       sync.Mutex
	photos   map[string]*batch.Photo
	albums   []albums.Album
	version  int
	failures map[string][]MockResponse
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	RequestIDs        []string
}

// NewMockPhotos starts a mock service holding the given photos and albums.
func NewMockPhotos(photos []*batch.Photo, catalog []albums.Album) *MockPhotos {
	m := &MockPhotos{
		photos:   make(map[string]*batch.Photo, len(photos)),
		albums:   slices.Clone(catalog),
		version:  1,
		failures: make(map[string][]MockResponse),
		handlers: make(map[string]http.HandlerFunc),
	}
	for _, p := range photos {
		cp := new(batch.Photo)
		cp.Update(p)
		m.photos[p.UID] = cp
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockPhotos) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPhotos) Close() {
	m.server.Close()
}

// SetHandler replaces the handler for a path.
func (m *MockPhotos) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// FailNext queues canned responses for path that are served before the
// regular handler, one per request.
func (m *MockPhotos) FailNext(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], responses...)
}

// AddAlbum adds an album to the catalog and bumps the list ETag.
func (m *MockPhotos) AddAlbum(a albums.Album) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.albums = append(m.albums, a)
	m.version++
}

// Photo returns a copy of the stored photo, or nil.
func (m *MockPhotos) Photo(uid string) *batch.Photo {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[uid]
	if !ok {
		return nil
	}
	cp := new(batch.Photo)
	cp.Update(p)
	return cp
}

// Albums returns a copy of the catalog.
func (m *MockPhotos) Albums() []albums.Album {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.albums)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPhotos) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockPhotos) GetConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConditionalCount
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockPhotos) GetLastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastRequestHeader.Clone()
}

// GetRequestIDs returns the X-Request-ID of every request in arrival order.
func (m *MockPhotos) GetRequestIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.RequestIDs)
}

func (m *MockPhotos) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	m.RequestIDs = append(m.RequestIDs, r.Header.Get("X-Request-ID"))
	if r.Header.Get("If-None-Match") != "" {
		m.ConditionalCount++
	}

	var canned *MockResponse
	if queue := m.failures[r.URL.Path]; len(queue) > 0 {
		canned = &queue[0]
		m.failures[r.URL.Path] = queue[1:]
	}
	handler := m.handlers[r.URL.Path]
	m.mu.Unlock()

	switch {
	case canned != nil:
		writeCanned(w, *canned)
	case handler != nil:
		handler(w, r)
	case r.URL.Path == BatchEditPath && r.Method == http.MethodPost:
		m.batchEdit(w, r)
	case r.URL.Path == AlbumsPath && r.Method == http.MethodGet:
		m.listAlbums(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (m *MockPhotos) batchEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Photos []string     `json:"photos"`
		Values batch.Values `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if len(req.Photos) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no photos selected"})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var models []*batch.Photo
	for _, uid := range req.Photos {
		p, ok := m.photos[uid]
		if !ok {
			continue
		}
		if req.Values != nil {
			if err := m.apply(p, req.Values); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
		}
		cp := new(batch.Photo)
		cp.Update(p)
		models = append(models, cp)
	}

	writeJSON(w, http.StatusOK, batch.Response{Models: models, Values: aggregate(models)})
}

// apply writes values to p. Caller holds m.mu.
func (m *MockPhotos) apply(p *batch.Photo, values batch.Values) error {
	for name, agg := range values {
		switch name {
		case batch.FieldTitle:
			if err := agg.Decode(&p.Title); err != nil {
				return fmt.Errorf("title: %w", err)
			}
		case batch.FieldCaption:
			if err := agg.Decode(&p.Caption); err != nil {
				return fmt.Errorf("caption: %w", err)
			}
		case batch.FieldFavorite:
			if err := agg.Decode(&p.Favorite); err != nil {
				return fmt.Errorf("favorite: %w", err)
			}
		case batch.FieldPrivate:
			if err := agg.Decode(&p.Private); err != nil {
				return fmt.Errorf("private: %w", err)
			}
		case batch.FieldAlbums:
			m.applyAlbums(p, agg)
		}
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockPhotos) applyAlbums(p *batch.Photo, agg batch.FieldAggregate) {
	for _, item := range agg.Items {
		var album albums.Album
		switch c := item.(type) {
		case albums.Resolved:
			album = albums.Album{ID: c.ID, Title: c.Title}
		case albums.Pending:
			album = m.ensureAlbum(c.Text)
		default:
			continue
		}

		has := slices.ContainsFunc(p.Albums, func(a albums.Album) bool { return a.ID == album.ID })
		switch agg.Action {
		case batch.ActionAdd, batch.ActionSet:
			if !has {
				p.Albums = append(p.Albums, album)
			}
		case batch.ActionRemove:
			p.Albums = slices.DeleteFunc(p.Albums, func(a albums.Album) bool { return a.ID == album.ID })
		}
	}
}

// ensureAlbum finds an album by title or creates it. Caller holds m.mu.
func (m *MockPhotos) ensureAlbum(title string) albums.Album {
	for _, a := range m.albums {
		if a.Title == title {
			return a
		}
	}
	a := albums.Album{ID: fmt.Sprintf("as%06d", len(m.albums)+1), Title: title}
	m.albums = append(m.albums, a)
	m.version++
	return a
}

func (m *MockPhotos) listAlbums(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	etag := fmt.Sprintf(`"albums-v%d"`, m.version)
	list := slices.Clone(m.albums)
	m.mu.Unlock()

	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if list == nil {
		list = []albums.Album{}
	}
	writeJSON(w, http.StatusOK, list)
}

// aggregate computes field aggregates across models.
func aggregate(models []*batch.Photo) batch.Values {
	values := batch.Values{}
	if len(models) == 0 {
		return values
	}

	values[batch.FieldTitle] = sameOrMixed(models, func(p *batch.Photo) any { return p.Title })
	values[batch.FieldCaption] = sameOrMixed(models, func(p *batch.Photo) any { return p.Caption })
	values[batch.FieldFavorite] = sameOrMixed(models, func(p *batch.Photo) any { return p.Favorite })
	values[batch.FieldPrivate] = sameOrMixed(models, func(p *batch.Photo) any { return p.Private })

	var items albums.Candidates
	seen := map[string]int{}
	for _, p := range models {
		for _, a := range p.Albums {
			if seen[a.ID] == 0 {
				items = append(items, albums.Resolved{ID: a.ID, Title: a.Title})
			}
			seen[a.ID]++
		}
	}
	mixed := false
	for _, n := range seen {
		if n != len(models) {
			mixed = true
		}
	}
	values[batch.FieldAlbums] = batch.FieldAggregate{Mixed: mixed, Action: batch.ActionNone, Items: items}

	return values
}

func sameOrMixed(models []*batch.Photo, get func(*batch.Photo) any) batch.FieldAggregate {
	first, _ := json.Marshal(get(models[0]))
	for _, p := range models[1:] {
		v, _ := json.Marshal(get(p))
		if string(v) != string(first) {
			return batch.FieldAggregate{Mixed: true}
		}
	}
	return batch.FieldAggregate{Value: first}
}

func writeCanned(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
