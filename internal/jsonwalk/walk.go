// Package jsonwalk finds values by key anywhere inside decoded JSON.
//
// Values are the shapes produced by encoding/json when decoding into any:
// map[string]any, []any, string, float64, json.Number, bool and nil.
package jsonwalk

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Match is one occurrence of a watched key.
type Match struct {
	Key   string
	Value any
}

// Visitor is called for every object member whose key is in the watched set.
// Returning false stops descent into that member's value.
type Visitor func(m Match) (descend bool)

// Walker visits object members whose key is in Keys, depth first.
type Walker struct {
	Keys map[string]struct{}
}

func NewWalker(keys ...string) *Walker {
	w := &Walker{Keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		w.Keys[k] = struct{}{}
	}
	return w
}

func (w *Walker) Walk(v any, visit Visitor) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if _, ok := w.Keys[k]; ok {
				if !visit(Match{Key: k, Value: child}) {
					continue
				}
			}
			w.Walk(child, visit)
		}
	case []any:
		for _, child := range t {
			w.Walk(child, visit)
		}
	}
}

// Collect returns every match without descending into matched values.
func (w *Walker) Collect(v any) []Match {
	var out []Match
	w.Walk(v, func(m Match) bool {
		out = append(out, m)
		return false
	})
	return out
}

// Decode parses raw JSON keeping numbers as json.Number so large ids
// survive intact.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Object returns v as an object, or nil.
func Object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// Array returns v as an array, or nil.
func Array(v any) []any {
	a, _ := v.([]any)
	return a
}

// Get follows a dotted path of object keys.
func Get(v any, path string) any {
	cur := v
	for _, part := range strings.Split(path, ".") {
		m := Object(cur)
		if m == nil {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// String renders scalars as text. Objects, arrays and nil give "".
func String(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Int64 converts numbers and numeric strings. ok is false otherwise.
func Int64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// FirstString returns the first non-empty String of the given keys in obj.
func FirstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := String(obj[k]); s != "" {
			return s
		}
	}
	return ""
}
