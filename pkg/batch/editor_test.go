package batch

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/photo-batch-client/pkg/albums"
)

type fakeGateway struct {
	mu        sync.Mutex
	fetch     *Response
	save      *Response
	fetchErr  error
	saveErr   error
	saveGate  chan struct{}
	entered   chan struct{}
	saveCalls int
	savedIDs  []string
	savedVals Values
}

func (g *fakeGateway) FetchBatch(_ context.Context, ids []string) (*Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.fetch, nil
}

func (g *fakeGateway) SaveBatch(_ context.Context, ids []string, values Values) (*Response, error) {
	if g.entered != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
	}
	if g.saveGate != nil {
		<-g.saveGate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saveCalls++
	g.savedIDs = ids
	g.savedVals = values
	if g.saveErr != nil {
		return nil, g.saveErr
	}
	return g.save, nil
}

type countingTracker struct {
	mu             sync.Mutex
	started, ended int
}

func (c *countingTracker) Start() { c.mu.Lock(); c.started++; c.mu.Unlock() }
func (c *countingTracker) End()   { c.mu.Lock(); c.ended++; c.mu.Unlock() }

func mustValue(t *testing.T, v any) FieldAggregate {
	t.Helper()
	agg, err := SetValue(v)
	if err != nil {
		t.Fatalf("SetValue(%v) failed: %v", v, err)
	}
	return agg
}

func newTestEditor(t *testing.T, gw *fakeGateway, tracker Tracker) *Editor {
	t.Helper()
	e, err := New(Config{
		Gateway: gw,
		Tracker: tracker,
		Catalogs: map[FieldName]albums.Catalog{
			FieldAlbums: albums.StaticCatalog{{ID: "a1", Title: "Trips"}},
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func loadedEditor(t *testing.T, gw *fakeGateway) *Editor {
	t.Helper()
	gw.fetch = &Response{
		Models: []*Photo{
			{UID: "p1", Title: "One"},
			{UID: "p2", Title: "Two"},
			{UID: "p3", Title: "Three"},
		},
		Values: Values{
			FieldTitle:    {Mixed: true},
			FieldFavorite: mustValue(t, false),
		},
	}
	e := newTestEditor(t, gw, nil)
	if err := e.Load(context.Background(), []string{"p1", "p2", "p3"}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return e
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{Gateway: &fakeGateway{}}},
		{name: "missing gateway", config: Config{}, wantErr: true},
		{
			name: "nil catalog",
			config: Config{
				Gateway:  &fakeGateway{},
				Catalogs: map[FieldName]albums.Catalog{FieldAlbums: nil},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEditor_Load(t *testing.T) {
	e := loadedEditor(t, &fakeGateway{})

	if got := e.CountSelected(); got != 3 {
		t.Errorf("CountSelected() = %d, want 3", got)
	}
	if got := e.SelectedIDs(); !reflect.DeepEqual(got, []string{"p1", "p2", "p3"}) {
		t.Errorf("SelectedIDs() = %v, want insertion order", got)
	}
	if m := e.Model("p2"); m == nil || m.Title != "Two" {
		t.Errorf("Model(p2) = %+v", m)
	}

	values := e.Values()
	if !values[FieldTitle].Mixed {
		t.Error("Title should be mixed")
	}
	var fav bool
	if err := values[FieldFavorite].Decode(&fav); err != nil || fav {
		t.Errorf("Favorite = %v (err %v), want false", fav, err)
	}
}

func TestEditor_Load_DeduplicatesAndFiltersModels(t *testing.T) {
	gw := &fakeGateway{fetch: &Response{
		Models: []*Photo{{UID: "p1"}, {UID: "stranger"}, nil},
	}}
	e := newTestEditor(t, gw, nil)

	if err := e.Load(context.Background(), []string{"p1", "p1", "", "p2"}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := len(e.Selection()); got != 2 {
		t.Errorf("selection size = %d, want 2", got)
	}
	if e.Model("stranger") != nil {
		t.Error("photos that were not requested must not be tracked")
	}
}

func TestEditor_Load_Empty(t *testing.T) {
	e := newTestEditor(t, &fakeGateway{}, nil)

	if err := e.Load(context.Background(), nil); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Load(nil) error = %v, want ErrEmptySelection", err)
	}
}

func TestEditor_Load_ErrorKeepsState(t *testing.T) {
	gw := &fakeGateway{}
	e := loadedEditor(t, gw)
	before := e.Model("p1")

	wantErr := errors.New("network down")
	gw.fetchErr = wantErr

	if err := e.Load(context.Background(), []string{"p9"}); !errors.Is(err, wantErr) {
		t.Fatalf("Load error = %v, want %v", err, wantErr)
	}

	if e.IsSelected("p9") != SelectionUnknown {
		t.Error("failed load must not change the selection")
	}
	if e.Model("p1") != before || e.CountSelected() != 3 {
		t.Error("failed load must keep previous models")
	}
}

func TestEditor_Save_MergePreservesIdentity(t *testing.T) {
	gw := &fakeGateway{}
	e := loadedEditor(t, gw)

	p1 := e.Model("p1")
	p2 := e.Model("p2")

	gw.save = &Response{
		Models: []*Photo{
			{UID: "p1", Title: "Renamed", Favorite: true},
			{UID: "p4", Title: "Four"},
		},
		Values: Values{FieldTitle: mustValue(t, "Renamed")},
	}

	values := Values{FieldTitle: mustValue(t, "Renamed")}
	if err := e.Save(context.Background(), []string{"p1", "p2"}, values); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if e.Model("p1") != p1 {
		t.Error("merge must update p1 in place")
	}
	if p1.Title != "Renamed" || !p1.Favorite {
		t.Errorf("p1 = %+v, want merged fields", p1)
	}
	if p2.Title != "Two" {
		t.Errorf("p2 absent from response must stay untouched, got %+v", p2)
	}
	if m := e.Model("p4"); m == nil || m.Title != "Four" {
		t.Errorf("p4 should be appended, got %+v", m)
	}
	if e.IsSelected("p4") == SelectionUnknown {
		t.Error("appended photo must be tracked in the selection")
	}
	if got := len(e.Models()); got != 4 {
		t.Errorf("len(Models()) = %d, want 4", got)
	}

	var title string
	if err := e.Values()[FieldTitle].Decode(&title); err != nil || title != "Renamed" {
		t.Errorf("values not refreshed from response: %q (err %v)", title, err)
	}
	if !reflect.DeepEqual(gw.savedIDs, []string{"p1", "p2"}) {
		t.Errorf("saved ids = %v", gw.savedIDs)
	}
}

func TestEditor_Save_ErrorKeepsState(t *testing.T) {
	gw := &fakeGateway{}
	e := loadedEditor(t, gw)
	tracker := &countingTracker{}
	e.tracker = tracker

	wantErr := errors.New("server error")
	gw.saveErr = wantErr
	gw.save = &Response{Models: []*Photo{{UID: "p1", Title: "Changed"}}}

	if err := e.Save(context.Background(), []string{"p1"}, Values{}); !errors.Is(err, wantErr) {
		t.Fatalf("Save error = %v, want %v", err, wantErr)
	}

	if e.Model("p1").Title != "One" {
		t.Error("failed save must not merge")
	}
	if tracker.started != 1 || tracker.ended != 1 {
		t.Errorf("tracker start/end = %d/%d, want 1/1", tracker.started, tracker.ended)
	}
}

func TestEditor_Save_Serialized(t *testing.T) {
	gw := &fakeGateway{}
	e := loadedEditor(t, gw)

	gw.save = &Response{}
	gw.saveGate = make(chan struct{})
	gw.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- e.Save(context.Background(), []string{"p1"}, Values{})
	}()

	select {
	case <-gw.entered:
	case <-time.After(time.Second):
		t.Fatal("first save did not reach the gateway")
	}

	if err := e.Save(context.Background(), []string{"p2"}, Values{}); !errors.Is(err, ErrSaveInProgress) {
		t.Errorf("concurrent Save error = %v, want ErrSaveInProgress", err)
	}

	close(gw.saveGate)
	if err := <-done; err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	gw.mu.Lock()
	calls := gw.saveCalls
	gw.mu.Unlock()
	if calls != 1 {
		t.Errorf("gateway save calls = %d, want 1", calls)
	}

	// The editor accepts saves again once the first one finished.
	if err := e.Save(context.Background(), []string{"p2"}, Values{}); err != nil {
		t.Errorf("Save after completion failed: %v", err)
	}
}

func TestEditor_Save_ReloadDiscardsInFlightResponse(t *testing.T) {
	gw := &fakeGateway{}
	e := loadedEditor(t, gw)

	gw.save = &Response{Models: []*Photo{{UID: "p1", Title: "saved"}, {UID: "p4", Title: "new"}}}
	gw.saveGate = make(chan struct{})
	gw.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- e.Save(context.Background(), []string{"p1"}, Values{FieldTitle: mustValue(t, "saved")})
	}()

	select {
	case <-gw.entered:
	case <-time.After(time.Second):
		t.Fatal("save did not reach the gateway")
	}

	gw.mu.Lock()
	gw.fetch = &Response{Models: []*Photo{{UID: "p9", Title: "Nine"}}}
	gw.mu.Unlock()
	if err := e.Load(context.Background(), []string{"p9"}); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	close(gw.saveGate)
	if err := <-done; !errors.Is(err, ErrSessionReloaded) {
		t.Errorf("Save error = %v, want ErrSessionReloaded", err)
	}

	want := []SelectionEntry{{ID: "p9", Selected: true}}
	if got := e.Selection(); !reflect.DeepEqual(got, want) {
		t.Errorf("Selection() = %v, want %v", got, want)
	}
	models := e.Models()
	if len(models) != 1 || models[0].UID != "p9" || models[0].Title != "Nine" {
		t.Errorf("Models() = %v, want only p9", models)
	}
	if e.Model("p1") != nil || e.Model("p4") != nil {
		t.Error("response of the earlier save must not leak into the reloaded state")
	}
}

func TestEditor_Save_InvalidAction(t *testing.T) {
	e := loadedEditor(t, &fakeGateway{})

	err := e.Save(context.Background(), []string{"p1"}, Values{FieldAlbums: {Action: "merge"}})
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Save error = %v, want ErrInvalidAction", err)
	}
}

func TestEditor_SaveSelected(t *testing.T) {
	gw := &fakeGateway{save: &Response{}}
	e := loadedEditor(t, gw)
	e.Toggle("p2")

	if err := e.SaveSelected(context.Background(), Values{}); err != nil {
		t.Fatalf("SaveSelected failed: %v", err)
	}
	if !reflect.DeepEqual(gw.savedIDs, []string{"p1", "p3"}) {
		t.Errorf("saved ids = %v, want [p1 p3]", gw.savedIDs)
	}

	e.ToggleAll(false)
	if err := e.SaveSelected(context.Background(), Values{}); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("SaveSelected with nothing selected: error = %v", err)
	}
}

func TestEditor_Selection(t *testing.T) {
	e := loadedEditor(t, &fakeGateway{})

	if got := e.IsSelected("p1"); got != Selected {
		t.Errorf("IsSelected(p1) = %v, want selected", got)
	}
	if got := e.IsSelected("nope"); got != SelectionUnknown {
		t.Errorf("IsSelected(nope) = %v, want unknown", got)
	}

	e.Toggle("p1")
	if got := e.IsSelected("p1"); got != Deselected {
		t.Errorf("IsSelected(p1) after toggle = %v, want deselected", got)
	}
	e.Toggle("p1")
	if got := e.IsSelected("p1"); got != Selected {
		t.Errorf("IsSelected(p1) after second toggle = %v, want selected", got)
	}

	e.Toggle("nope")
	if got := e.IsSelected("nope"); got != SelectionUnknown {
		t.Errorf("Toggle on unknown id must be a no-op, got %v", got)
	}

	e.ToggleAll(false)
	if got := e.CountSelected(); got != 0 {
		t.Errorf("CountSelected() after ToggleAll(false) = %d, want 0", got)
	}
	e.ToggleAll(true)
	if got := e.CountSelected(); got != 3 {
		t.Errorf("CountSelected() after ToggleAll(true) = %d, want 3", got)
	}
}

func TestEditor_TrackerBracketsCalls(t *testing.T) {
	tracker := &countingTracker{}
	gw := &fakeGateway{fetch: &Response{}, save: &Response{}}
	e := newTestEditor(t, gw, tracker)

	if err := e.Load(context.Background(), []string{"p1"}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := e.Save(context.Background(), []string{"p1"}, Values{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if tracker.started != 2 || tracker.ended != 2 {
		t.Errorf("tracker start/end = %d/%d, want 2/2", tracker.started, tracker.ended)
	}
}

func TestEditor_SetItems(t *testing.T) {
	e := loadedEditor(t, &fakeGateway{})

	picks := []albums.Candidate{albums.Pending{Text: " trips"}, albums.Pending{Text: "New"}}
	result, err := e.SetItems(context.Background(), FieldAlbums, ActionAdd, picks)
	if err != nil {
		t.Fatalf("SetItems failed: %v", err)
	}
	if !result.Changed {
		t.Error("expected a change")
	}

	want := albums.Candidates{albums.Resolved{ID: "a1", Title: "Trips"}, albums.Pending{Text: "New"}}
	agg := e.Values()[FieldAlbums]
	if !reflect.DeepEqual(agg.Items, want) {
		t.Errorf("Items = %#v, want %#v", agg.Items, want)
	}
	if agg.Action != ActionAdd {
		t.Errorf("Action = %q, want add", agg.Action)
	}

	if _, err := e.SetItems(context.Background(), FieldLabels, ActionAdd, picks); !errors.Is(err, ErrNoCatalog) {
		t.Errorf("SetItems without catalog: error = %v, want ErrNoCatalog", err)
	}
	if _, err := e.SetItems(context.Background(), FieldAlbums, "merge", picks); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("SetItems with bad action: error = %v, want ErrInvalidAction", err)
	}
}

func TestFieldAggregate_JSON(t *testing.T) {
	agg := FieldAggregate{
		Action: ActionAdd,
		Items:  albums.Candidates{albums.Resolved{ID: "a1", Title: "Trips"}, albums.Pending{Text: "New"}},
	}

	data, err := json.Marshal(agg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded FieldAggregate
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !decoded.Equal(agg) {
		t.Errorf("decoded = %+v, want %+v", decoded, agg)
	}
}

func TestFieldAggregate_Equal(t *testing.T) {
	a := FieldAggregate{Value: json.RawMessage(`{"a": 1}`)}
	b := FieldAggregate{Value: json.RawMessage(`{"a":1}`)}
	if !a.Equal(b) {
		t.Error("values differing only in whitespace should be equal")
	}

	c := FieldAggregate{Value: json.RawMessage(`{"a":2}`)}
	if a.Equal(c) {
		t.Error("different values should not be equal")
	}

	if (FieldAggregate{Mixed: true}).Equal(FieldAggregate{}) {
		t.Error("mixed flag must be compared")
	}
}

func TestPhoto_Update(t *testing.T) {
	p := &Photo{UID: "p1", Title: "Old", Labels: []string{"cat"}}
	src := &Photo{UID: "p1", Title: "New", Labels: []string{"dog"}}

	p.Update(src)
	src.Labels[0] = "mutated"

	if p.Title != "New" || p.Labels[0] != "dog" {
		t.Errorf("Update produced %+v", p)
	}
}
