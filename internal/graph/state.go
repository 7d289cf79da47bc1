package graph

import (
	"maps"
	"reflect"
)

// State is the mutable record threaded through one execution of a graph.
// It maps field names to values. Nodes receive the full merged state and
// return a partial State containing only the fields they changed; the engine
// owns the authoritative copy for the duration of the run.
type State map[string]any

// Clone returns a shallow copy of the state. Field values are shared, which
// is safe under the engine's merge discipline: nodes never mutate values in
// place, they return replacements.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// String returns the string stored under key, or "" if absent or not a string.
func (s State) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Int returns the integer stored under key. JSON round-trips store numbers as
// float64, so both representations are accepted. Absent or mistyped → 0.
func (s State) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns the boolean stored under key, or false if absent or mistyped.
func (s State) Bool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// Float64 returns the float stored under key, accepting int for convenience.
func (s State) Float64(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Strings returns the string slice stored under key. A []any holding strings
// (the shape produced by JSON decoding) is converted; anything else → nil.
func (s State) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// As returns the value under key asserted to T. The second return reports
// whether the key was present and of the requested type.
func As[T any](s State, key string) (T, bool) {
	v, ok := s[key].(T)
	return v, ok
}

// Reducer merges an update into the existing value of a single state field.
// Fields without a registered reducer follow last-write-wins replacement.
type Reducer func(existing, update any) any

// AppendReducer concatenates slice updates onto the existing slice instead of
// replacing it. It is the merge policy for append-only fields such as
// conversation history. If the existing value is absent the update is taken
// as-is; if either value is not a slice of the same element type the update
// wins (last-write-wins fallback).
func AppendReducer(existing, update any) any {
	if existing == nil {
		return update
	}
	if update == nil {
		return existing
	}
	ev := reflect.ValueOf(existing)
	uv := reflect.ValueOf(update)
	if ev.Kind() != reflect.Slice || uv.Kind() != reflect.Slice || ev.Type() != uv.Type() {
		return update
	}
	out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+uv.Len())
	out = reflect.AppendSlice(out, ev)
	out = reflect.AppendSlice(out, uv)
	return out.Interface()
}
