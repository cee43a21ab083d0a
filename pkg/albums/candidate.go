// Package albums reconciles user album picks against the canonical album catalog.
package albums

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Album is a canonical catalog entry.
type Album struct {
	ID    string `json:"uid"`
	Title string `json:"title"`
}

// Candidate is one entry of a pick list: either a Resolved catalog reference
// or Pending free text that will be created on save.
type Candidate interface {
	candidate()
}

// Resolved references an existing catalog album.
type Resolved struct {
	ID    string `json:"uid"`
	Title string `json:"title"`
}

// Pending is free text not (yet) matched to a catalog album.
type Pending struct {
	Text string
}

func (Resolved) candidate() {}
func (Pending) candidate()  {}

// Candidates is an ordered pick list with a JSON form where Resolved entries
// are objects and Pending entries are plain strings.
type Candidates []Candidate

// MarshalJSON implements json.Marshaler.
func (c Candidates) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(c))
	for _, item := range c {
		switch v := item.(type) {
		case Resolved:
			out = append(out, v)
		case Pending:
			out = append(out, v.Text)
		default:
			return nil, fmt.Errorf("unsupported candidate %T", item)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Candidates) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode candidates: %w", err)
	}

	items := make(Candidates, 0, len(raw))
	for i, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 {
			continue
		}
		switch elem[0] {
		case '"':
			var text string
			if err := json.Unmarshal(elem, &text); err != nil {
				return fmt.Errorf("decode candidate %d: %w", i, err)
			}
			items = append(items, Pending{Text: text})
		case '{':
			var r Resolved
			if err := json.Unmarshal(elem, &r); err != nil {
				return fmt.Errorf("decode candidate %d: %w", i, err)
			}
			items = append(items, r)
		default:
			return fmt.Errorf("decode candidate %d: unexpected %s", i, elem)
		}
	}

	*c = items
	return nil
}
