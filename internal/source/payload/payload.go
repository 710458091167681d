// Package payload reads loosely typed provider records decoded into
// map[string]any.
package payload

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Str returns the first non-empty value among keys, rendered as a string.
func Str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := toString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// List returns the value at key as a string slice. Arrays are flattened and
// plain strings are returned as a single element.
func List(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := toString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

// Object returns the nested object at key, or nil.
func Object(m map[string]any, key string) map[string]any {
	obj, _ := m[key].(map[string]any)
	return obj
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		// Some providers wrap scalar values as {"name": "..."}.
		return Str(t, "name", "value", "label")
	default:
		return ""
	}
}
