// Package flatten turns nested record sections into single-level maps keyed by
// composite column names, and back.
//
// Every field value is classified exactly once into a Kind. Mappings recurse,
// lists of one scalar type are joined into one cell, lists of mappings are left to the
// caller (they need row-level handling) and anything else is copied as is.
// An empty list is treated as absent: no column is emitted for it.
package flatten

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// Separator joins the segments of a nested field path.
	Separator = "_"
	// ListSeparator joins the elements of a collapsed list.
	ListSeparator = "; "
)

// ErrMixedList is returned for a list whose elements are neither all of one
// scalar type nor all mappings (strings with numbers, scalars with mappings,
// nested lists).
var ErrMixedList = errors.New("list mixes element types")

// Kind is the shape of a decoded JSON value as seen by the flattener.
type Kind int

const (
	Scalar Kind = iota
	Nested
	ScalarList
	ObjectList
	Empty
	Mixed
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Nested:
		return "nested"
	case ScalarList:
		return "scalar-list"
	case ObjectList:
		return "object-list"
	case Empty:
		return "empty"
	case Mixed:
		return "mixed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Classify reports the Kind of v.
func Classify(v any) Kind {
	switch t := v.(type) {
	case map[string]any:
		return Nested
	case []any:
		if len(t) == 0 {
			return Empty
		}
		var strs, nums, bools, nulls, objs int
		for _, e := range t {
			switch e.(type) {
			case nil:
				nulls++
			case string:
				strs++
			case float64, json.Number:
				nums++
			case bool:
				bools++
			case map[string]any:
				objs++
			}
		}
		switch {
		case objs == len(t):
			return ObjectList
		case nulls < len(t) && (strs+nulls == len(t) || nums+nulls == len(t) || bools+nulls == len(t)):
			return ScalarList
		}
		return Mixed
	}
	return Scalar
}

// Join composes a column name from a prefix and a field name.
func Join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + Separator + key
}

// JoinScalars collapses a ScalarList value into one cell. Null elements
// leave an empty slot.
func JoinScalars(list []any) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = Format(e)
	}
	return strings.Join(parts, ListSeparator)
}

// Format renders a decoded value as cell text. Null renders as the empty
// string, numbers keep their source text and anything structured is
// rendered as JSON.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}

	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// SortedKeys returns the keys of m in byte order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten flattens m under prefix. ObjectList and Empty fields are skipped;
// a Mixed list aborts with ErrMixedList naming the offending column.
func Flatten(prefix string, m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	if err := flattenInto(out, prefix, m); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out map[string]any, prefix string, m map[string]any) error {
	for _, k := range SortedKeys(m) {
		v := m[k]
		key := Join(prefix, k)

		switch Classify(v) {
		case Nested:
			if err := flattenInto(out, key, v.(map[string]any)); err != nil {
				return err
			}
		case ScalarList:
			out[key] = JoinScalars(v.([]any))
		case ObjectList, Empty:
			// object lists expand at row level; empty lists are absent
		case Mixed:
			return fmt.Errorf("%w: %s", ErrMixedList, key)
		default:
			out[key] = v
		}
	}
	return nil
}

// Unflatten re-nests a flat map by splitting keys on Separator.
//
// When a shorter key already holds a leaf value, the longer key is kept at
// that level with its remaining segments rejoined, so no value is lost.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for _, k := range SortedKeys(flat) {
		insert(out, strings.Split(k, Separator), flat[k])
	}
	return out
}

func insert(node map[string]any, path []string, v any) {
	for i, seg := range path[:len(path)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			if _, taken := node[seg]; taken {
				node[strings.Join(path[i:], Separator)] = v
				return
			}
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[path[len(path)-1]] = v
}
