// Package batch implements bulk editing of photos: selection state, aggregated
// field values, and reconciliation of server-confirmed changes into the
// editor's in-memory collection.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/Sternrassler/photo-batch-client/pkg/albums"
)

// FieldName names an editable photo field.
type FieldName string

// Editable fields.
const (
	FieldTitle       FieldName = "Title"
	FieldCaption     FieldName = "Caption"
	FieldTakenAt     FieldName = "TakenAt"
	FieldFavorite    FieldName = "Favorite"
	FieldPrivate     FieldName = "Private"
	FieldAlbums      FieldName = "Albums"
	FieldLabels      FieldName = "Labels"
	FieldDescription FieldName = "Description"
)

// Action describes how a multi-valued field is changed.
type Action string

// Actions for multi-valued fields.
const (
	ActionNone   Action = "none"
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionSet    Action = "set"
)

// Valid reports whether a is a known action. The zero value counts as ActionNone.
func (a Action) Valid() bool {
	switch a {
	case "", ActionNone, ActionAdd, ActionRemove, ActionSet:
		return true
	default:
		return false
	}
}

// FieldAggregate is one field's value across the selection.
type FieldAggregate struct {
	// Mixed is true when the field differs between the selected photos.
	Mixed bool `json:"mixed"`

	// Value is the shared value when not mixed, as JSON.
	Value json.RawMessage `json:"value,omitempty"`

	// Action and Items apply to multi-valued fields only.
	Action Action            `json:"action,omitempty"`
	Items  albums.Candidates `json:"items,omitempty"`
}

// Decode unmarshals the aggregate value into v.
func (f FieldAggregate) Decode(v any) error {
	if len(f.Value) == 0 {
		return nil
	}
	return json.Unmarshal(f.Value, v)
}

// Equal reports whether two aggregates carry the same state.
func (f FieldAggregate) Equal(o FieldAggregate) bool {
	if f.Mixed != o.Mixed || f.Action != o.Action || len(f.Items) != len(o.Items) {
		return false
	}
	if !jsonEqual(f.Value, o.Value) {
		return false
	}
	return slices.Equal(f.Items, o.Items)
}

// SetValue returns an aggregate holding value for every selected photo.
func SetValue(value any) (FieldAggregate, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return FieldAggregate{}, err
	}
	return FieldAggregate{Value: data}, nil
}

// Values maps field names to their aggregates.
type Values map[FieldName]FieldAggregate

// Clone returns a deep copy.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for name, agg := range v {
		agg.Value = bytes.Clone(agg.Value)
		agg.Items = slices.Clone(agg.Items)
		out[name] = agg
	}
	return out
}

// Photo is the editor's snapshot of one photo.
type Photo struct {
	UID         string         `json:"uid"`
	Title       string         `json:"title"`
	Caption     string         `json:"caption"`
	Description string         `json:"description"`
	TakenAt     time.Time      `json:"taken_at"`
	Favorite    bool           `json:"favorite"`
	Private     bool           `json:"private"`
	Albums      []albums.Album `json:"albums"`
	Labels      []string       `json:"labels"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Update copies all fields of src into p. The receiver keeps its identity, so
// references held elsewhere observe the new values.
func (p *Photo) Update(src *Photo) {
	*p = *src
	p.Albums = slices.Clone(src.Albums)
	p.Labels = slices.Clone(src.Labels)
}

// SelectionEntry is one tracked photo.
type SelectionEntry struct {
	ID       string `json:"id"`
	Selected bool   `json:"selected"`
}

// Selection is the result of IsSelected.
type Selection int

const (
	// SelectionUnknown means the id is not tracked by the editor.
	SelectionUnknown Selection = iota
	// Deselected means the id is tracked but not selected.
	Deselected
	// Selected means the id is tracked and selected.
	Selected
)

// String returns the selection state name.
func (s Selection) String() string {
	switch s {
	case Selected:
		return "selected"
	case Deselected:
		return "deselected"
	default:
		return "unknown"
	}
}

// Response is returned by the gateway for both fetch and save.
// On save, Models may cover only a subset of the requested ids.
type Response struct {
	Models []*Photo `json:"models"`
	Values Values   `json:"values"`
}

// Gateway is the remote side of a batch edit.
type Gateway interface {
	FetchBatch(ctx context.Context, ids []string) (*Response, error)
	SaveBatch(ctx context.Context, ids []string, values Values) (*Response, error)
}

// Tracker is bracketed around every gateway call.
type Tracker interface {
	Start()
	End()
}

func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
