// Package devutil holds small helpers for operator-facing output.
package devutil

import (
	"encoding/json"
	"strings"
)

// Pick renders v through JSON and keeps only the requested keys. A key may
// be a dotted path ("commerce.linked"); the result then nests the same way.
// Unknown keys are skipped.
func Pick(v any, keys ...string) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		path := strings.Split(strings.TrimSpace(k), ".")
		val, ok := lookup(m, path)
		if !ok {
			continue
		}
		set(out, path, val)
	}
	return out
}

func lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func set(m map[string]any, path []string, val any) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = val
}
