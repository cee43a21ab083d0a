package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/photo-batch-client/pkg/albums"
)

// Common errors returned by the editor.
var (
	// ErrEmptySelection is returned when an operation is called without ids.
	ErrEmptySelection = errors.New("no photos selected")

	// ErrSaveInProgress is returned when Save is called while another save of
	// the same editor has not finished.
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrNoCatalog is returned by SetItems for a field without a catalog.
	ErrNoCatalog = errors.New("no catalog for field")

	// ErrInvalidAction is returned for unknown multi-valued field actions.
	ErrInvalidAction = errors.New("invalid field action")

	// ErrSessionReloaded is returned by Save when Load replaced the editor
	// state while the save was in flight. The service applied the save, but
	// its response was not merged into the new state.
	ErrSessionReloaded = errors.New("editor reloaded during save")
)

// Config holds the editor configuration.
type Config struct {
	// Gateway performs fetch and save calls (required)
	Gateway Gateway

	// Tracker is bracketed around every gateway call; may be nil
	Tracker Tracker

	// Catalogs provide canonical entries for multi-valued fields
	Catalogs map[FieldName]albums.Catalog

	Logger zerolog.Logger
}

// Editor holds the state of one bulk-edit session.
// Create one per session and discard it when the session closes.
type Editor struct {
	gateway  Gateway
	tracker  Tracker
	catalogs map[FieldName]albums.Catalog
	logger   zerolog.Logger

	// saving serializes Save calls; mu guards the state below.
	saving sync.Mutex
	mu     sync.RWMutex

	selection  []*SelectionEntry
	index      map[string]*SelectionEntry
	models     []*Photo
	modelIndex map[string]*Photo
	values     Values
	// generation is bumped by every successful Load.
	generation uint64
}

// New creates an empty editor.
func New(cfg Config) (*Editor, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	catalogs := make(map[FieldName]albums.Catalog, len(cfg.Catalogs))
	for name, c := range cfg.Catalogs {
		if c == nil {
			return nil, fmt.Errorf("catalog for field %s is nil", name)
		}
		catalogs[name] = c
	}

	return &Editor{
		gateway:    cfg.Gateway,
		tracker:    cfg.Tracker,
		catalogs:   catalogs,
		logger:     cfg.Logger.With().Str("component", "batch-editor").Logger(),
		index:      make(map[string]*SelectionEntry),
		modelIndex: make(map[string]*Photo),
		values:     Values{},
	}, nil
}

// Load fetches the photos with the given ids and replaces the editor state.
// Duplicate ids are ignored. On error the previous state is kept.
func (e *Editor) Load(ctx context.Context, ids []string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ErrEmptySelection
	}

	start := time.Now()
	resp, err := e.call(ctx, func(ctx context.Context) (*Response, error) {
		return e.gateway.FetchBatch(ctx, ids)
	})
	if err != nil {
		editorOperationsTotal.WithLabelValues("load", "error").Inc()
		e.logger.Error().Err(err).Int("photos", len(ids)).Msg("Batch load failed")
		return fmt.Errorf("load batch: %w", err)
	}

	selection := make([]*SelectionEntry, 0, len(ids))
	index := make(map[string]*SelectionEntry, len(ids))
	for _, id := range ids {
		entry := &SelectionEntry{ID: id, Selected: true}
		selection = append(selection, entry)
		index[id] = entry
	}

	models := make([]*Photo, 0, len(resp.Models))
	modelIndex := make(map[string]*Photo, len(resp.Models))
	for _, m := range resp.Models {
		if m == nil {
			continue
		}
		if _, tracked := index[m.UID]; !tracked {
			e.logger.Warn().Str("uid", m.UID).Msg("Ignoring photo that was not requested")
			continue
		}
		if existing, dup := modelIndex[m.UID]; dup {
			existing.Update(m)
			continue
		}
		p := new(Photo)
		p.Update(m)
		models = append(models, p)
		modelIndex[m.UID] = p
	}

	values := resp.Values.Clone()
	if values == nil {
		values = Values{}
	}

	e.mu.Lock()
	e.selection = selection
	e.index = index
	e.models = models
	e.modelIndex = modelIndex
	e.values = values
	e.generation++
	e.mu.Unlock()

	editorOperationsTotal.WithLabelValues("load", "success").Inc()
	e.logger.Info().
		Int("photos", len(ids)).
		Int("models", len(models)).
		Int("fields", len(values)).
		Dur("duration", time.Since(start)).
		Msg("Batch loaded")

	return nil
}

// Save submits values for the given ids and merges the photos confirmed by
// the service. Photos the response does not mention are left untouched.
// On error nothing changes. Only one Save per editor may run at a time. If
// Load replaces the state meanwhile, the response is dropped and Save returns
// ErrSessionReloaded.
func (e *Editor) Save(ctx context.Context, ids []string, values Values) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ErrEmptySelection
	}
	for name, agg := range values {
		if !agg.Action.Valid() {
			return fmt.Errorf("%w: %q for %s", ErrInvalidAction, agg.Action, name)
		}
	}

	if !e.saving.TryLock() {
		editorOperationsTotal.WithLabelValues("save", "rejected").Inc()
		return ErrSaveInProgress
	}
	defer e.saving.Unlock()

	e.mu.RLock()
	generation := e.generation
	e.mu.RUnlock()

	start := time.Now()
	payload := values.Clone()
	resp, err := e.call(ctx, func(ctx context.Context) (*Response, error) {
		return e.gateway.SaveBatch(ctx, ids, payload)
	})
	if err != nil {
		editorOperationsTotal.WithLabelValues("save", "error").Inc()
		e.logger.Error().Err(err).Int("photos", len(ids)).Msg("Batch save failed")
		return fmt.Errorf("save batch: %w", err)
	}

	updated, added, ok := e.merge(resp, generation)
	if !ok {
		editorOperationsTotal.WithLabelValues("save", "stale").Inc()
		e.logger.Warn().Int("photos", len(ids)).Msg("Editor reloaded during save, response discarded")
		return ErrSessionReloaded
	}

	editorOperationsTotal.WithLabelValues("save", "success").Inc()
	e.logger.Info().
		Int("photos", len(ids)).
		Int("updated", updated).
		Int("added", added).
		Dur("duration", time.Since(start)).
		Msg("Batch saved")

	return nil
}

// SaveSelected saves values for every selected photo.
func (e *Editor) SaveSelected(ctx context.Context, values Values) error {
	return e.Save(ctx, e.SelectedIDs(), values)
}

// merge applies a save response: known photos are updated in place, unknown
// ones are appended and tracked as selected. Responses from before the last
// Load are dropped and reported with ok=false.
func (e *Editor) merge(resp *Response, generation uint64) (updated, added int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.generation != generation {
		return 0, 0, false
	}

	for _, m := range resp.Models {
		if m == nil {
			continue
		}
		if existing, found := e.modelIndex[m.UID]; found {
			existing.Update(m)
			updated++
			continue
		}

		p := new(Photo)
		p.Update(m)
		e.models = append(e.models, p)
		e.modelIndex[m.UID] = p
		if _, tracked := e.index[m.UID]; !tracked {
			entry := &SelectionEntry{ID: m.UID, Selected: true}
			e.selection = append(e.selection, entry)
			e.index[m.UID] = entry
		}
		added++
	}

	if len(resp.Values) > 0 {
		e.values = resp.Values.Clone()
	}

	return updated, added, true
}

// SetItems reconciles picks for a multi-valued field against the field's
// catalog and stores the canonical list on the field's aggregate.
func (e *Editor) SetItems(ctx context.Context, field FieldName, action Action, picks []albums.Candidate) (albums.Result, error) {
	if !action.Valid() {
		return albums.Result{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	catalog, ok := e.catalogs[field]
	if !ok {
		return albums.Result{}, fmt.Errorf("%w %s", ErrNoCatalog, field)
	}

	snapshot, err := catalog.Snapshot(ctx)
	if err != nil {
		return albums.Result{}, fmt.Errorf("catalog snapshot for %s: %w", field, err)
	}

	result := albums.Reconcile(picks, snapshot)

	e.mu.Lock()
	agg := e.values[field]
	agg.Action = action
	agg.Items = slices.Clone(result.Processed)
	e.values[field] = agg
	e.mu.Unlock()

	if result.Changed {
		e.logger.Debug().
			Str("field", string(field)).
			Int("picks", len(picks)).
			Int("items", len(result.Processed)).
			Msg("Picks reconciled")
	}

	return result, nil
}

// IsSelected reports whether id is selected, deselected or not tracked.
func (e *Editor) IsSelected(id string) Selection {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.index[id]
	switch {
	case !ok:
		return SelectionUnknown
	case entry.Selected:
		return Selected
	default:
		return Deselected
	}
}

// Toggle flips the selection of a tracked id. Unknown ids are ignored.
func (e *Editor) Toggle(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.index[id]; ok {
		entry.Selected = !entry.Selected
	}
}

// ToggleAll selects or deselects every tracked id.
func (e *Editor) ToggleAll(selected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range e.selection {
		entry.Selected = selected
	}
}

// CountSelected returns the number of selected ids.
func (e *Editor) CountSelected() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := 0
	for _, entry := range e.selection {
		if entry.Selected {
			n++
		}
	}
	return n
}

// SelectedIDs returns the selected ids in display order.
func (e *Editor) SelectedIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.selection))
	for _, entry := range e.selection {
		if entry.Selected {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}

// Selection returns a copy of the selection in display order.
func (e *Editor) Selection() []SelectionEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]SelectionEntry, len(e.selection))
	for i, entry := range e.selection {
		out[i] = *entry
	}
	return out
}

// Models returns the tracked photos. The pointers stay valid across saves.
func (e *Editor) Models() []*Photo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.models)
}

// Model returns the tracked photo with the given id, or nil.
func (e *Editor) Model(id string) *Photo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modelIndex[id]
}

// Values returns a copy of the current field aggregates.
func (e *Editor) Values() Values {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.values.Clone()
}

func (e *Editor) call(ctx context.Context, fn func(context.Context) (*Response, error)) (*Response, error) {
	if e.tracker != nil {
		e.tracker.Start()
		defer e.tracker.End()
	}

	resp, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}
	return resp, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
