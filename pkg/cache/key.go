package cache

import (
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix is the prefix of every key written by the Manager.
const KeyPrefix = "photobatch"

// Key identifies a cached payload.
type Key struct {
	// Namespace groups related entries (e.g., "catalog")
	Namespace string

	// Name is the entry name inside the namespace (e.g., "albums")
	Name string

	// Params narrow the entry (e.g., {"type": "album"})
	Params map[string]string

	// Owner scopes the entry to one account or session ("" for shared entries)
	Owner string
}

// String generates a deterministic key string.
// Format: photobatch:namespace:name:param1=val1:owner=abc
//
// Example:
//
//	photobatch:catalog:albums:type=album
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	if name := strings.Trim(k.Name, ":"); name != "" {
		parts = append(parts, name)
	}

	// Params are sorted for determinism
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	if k.Owner != "" {
		parts = append(parts, "owner="+k.Owner)
	}

	return strings.Join(parts, ":")
}
