package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ServerTimestamp is a placeholder the store replaces with its own clock
// (milliseconds since the epoch) at the moment the value is written
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

const (
	serverValueKey       = ".sv"
	serverValueTimestamp = "timestamp"
)

// MarshalJSON encodes the placeholder so it survives normalisation
func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`{".sv":"timestamp"}`), nil
}

// Normalize converts any JSON-encodable value into the canonical tree form:
// maps, slices, strings, float64s and bools. Nil map entries and empty
// containers are pruned, so an empty result is nil.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return prune(out), nil
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if p := prune(child); p == nil {
				delete(t, k)
			} else {
				t[k] = p
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		if len(t) == 0 {
			return nil
		}
		for i := range t {
			t[i] = prune(t[i])
		}
		return t
	default:
		return v
	}
}

// HasServerValues reports whether a normalised value contains placeholders
func HasServerValues(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		if isServerTimestamp(t) {
			return true
		}
		for _, child := range t {
			if HasServerValues(child) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if HasServerValues(child) {
				return true
			}
		}
	}
	return false
}

// ResolveServerValues replaces placeholders in a normalised value with nowMillis
func ResolveServerValues(v any, nowMillis int64) any {
	switch t := v.(type) {
	case map[string]any:
		if isServerTimestamp(t) {
			return float64(nowMillis)
		}
		for k, child := range t {
			t[k] = ResolveServerValues(child, nowMillis)
		}
	case []any:
		for i, child := range t {
			t[i] = ResolveServerValues(child, nowMillis)
		}
	}
	return v
}

func isServerTimestamp(m map[string]any) bool {
	return len(m) == 1 && m[serverValueKey] == serverValueTimestamp
}

// Clone deep-copies a normalised value
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two normalised values are identical
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// GetAt returns the descendant of root at segs, or nil
func GetAt(root any, segs []string) any {
	node := root
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

// SetAt stores v (already normalised) at segs below root and returns the new
// root. Intermediate maps are created as needed and emptied ones pruned.
// root is modified in place.
func SetAt(root any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := root.(map[string]any)
	if !ok {
		if v == nil {
			return root
		}
		m = make(map[string]any)
	}
	child := SetAt(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// NormalizeFields normalises an update's field map, validating the field
// paths. Fields whose paths overlap (one an ancestor of another) are rejected.
func NormalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	seen := make([][]string, 0, len(keys))
	for _, k := range keys {
		segs := Split(k)
		if len(segs) == 0 {
			return nil, fmt.Errorf("%w: empty update field", ErrInvalidPath)
		}
		if err := ValidatePath(segs); err != nil {
			return nil, err
		}
		for _, other := range seen {
			if Related(other, segs) {
				return nil, fmt.Errorf("%w: overlapping update fields %q", ErrInvalidPath, k)
			}
		}
		seen = append(seen, segs)
		v, err := Normalize(fields[k])
		if err != nil {
			return nil, err
		}
		out[Join(segs...)] = v
	}
	return out, nil
}

// ApplyFields merges normalised fields into node and returns the result
func ApplyFields(node any, fields map[string]any) any {
	for k, v := range fields {
		node = SetAt(node, Split(k), Clone(v))
	}
	return node
}

// Decode converts a normalised value into out, which must be a pointer
func Decode(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
