package albums

import "strings"

// Result is the outcome of Reconcile.
type Result struct {
	// Processed is the canonical, de-duplicated pick list.
	Processed Candidates

	// Changed reports whether Processed differs from the input picks.
	Changed bool
}

// Reconcile converts a pick list into canonical form against a catalog snapshot.
//
// Free text matching a catalog title (case-insensitive, surrounding whitespace
// ignored) is replaced by a Resolved reference. Resolved references are
// de-duplicated by id, first occurrence wins. Text without a match stays
// Pending with its whitespace trimmed. Blank text and nil entries are dropped.
//
// When several catalog albums share a title the first one in catalog order wins.
// Catalog entries with an empty ID are ignored. Neither argument is modified.
func Reconcile(picks []Candidate, catalog []Album) Result {
	if picks == nil {
		return Result{Processed: Candidates{}}
	}

	byTitle := make(map[string]Album, len(catalog))
	for _, a := range catalog {
		if a.ID == "" {
			continue
		}
		key := normalize(a.Title)
		if _, ok := byTitle[key]; !ok {
			byTitle[key] = a
		}
	}

	emitted := make(map[string]struct{}, len(picks))
	processed := make(Candidates, 0, len(picks))
	changed := false

	for _, pick := range picks {
		switch p := pick.(type) {
		case Pending:
			text := strings.TrimSpace(p.Text)
			if text == "" {
				changed = true
				continue
			}

			if a, ok := byTitle[strings.ToLower(text)]; ok {
				changed = true
				if _, dup := emitted[a.ID]; dup {
					continue
				}
				emitted[a.ID] = struct{}{}
				processed = append(processed, Resolved{ID: a.ID, Title: a.Title})
				continue
			}

			if text != p.Text {
				changed = true
			}
			processed = append(processed, Pending{Text: text})

		case Resolved:
			if _, dup := emitted[p.ID]; dup {
				changed = true
				continue
			}
			emitted[p.ID] = struct{}{}
			processed = append(processed, p)

		default:
			changed = true
		}
	}

	if len(processed) != len(picks) {
		changed = true
	}

	return Result{Processed: processed, Changed: changed}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
