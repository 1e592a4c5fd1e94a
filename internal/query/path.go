package query

import "strings"

// resolve walks a dot-path through nested maps and slices. Crossing a
// slice fans out: the result contains the resolution of the remaining
// path against every element. A missing segment yields no values.
func resolve(v any, path string) []any {
	if path == "" {
		return []any{v}
	}
	seg, rest, _ := strings.Cut(path, ".")
	switch node := v.(type) {
	case map[string]any:
		child, ok := node[seg]
		if !ok {
			return nil
		}
		return resolve(child, rest)
	case []any:
		var out []any
		for _, elem := range node {
			out = append(out, resolve(elem, path)...)
		}
		return out
	default:
		return nil
	}
}

// project builds an output record containing only the given path,
// preserving the nesting (and array shape) of the source. Returns false
// when the path resolves to nothing.
func project(dst map[string]any, src any, path string) bool {
	seg, rest, more := strings.Cut(path, ".")
	m, ok := src.(map[string]any)
	if !ok {
		return false
	}
	child, ok := m[seg]
	if !ok {
		return false
	}
	if !more {
		dst[seg] = child
		return true
	}
	switch node := child.(type) {
	case map[string]any:
		sub, _ := dst[seg].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
		}
		if !project(sub, node, rest) {
			return false
		}
		dst[seg] = sub
		return true
	case []any:
		// Keep only elements where the remaining path resolves.
		var kept []any
		for _, elem := range node {
			sub := map[string]any{}
			if project(sub, elem, rest) {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			return false
		}
		dst[seg] = kept
		return true
	default:
		return false
	}
}

// exclude removes a dot-path from a record in place, descending into
// slices element-wise.
func exclude(v any, path string) {
	seg, rest, more := strings.Cut(path, ".")
	switch node := v.(type) {
	case map[string]any:
		if !more {
			delete(node, seg)
			return
		}
		exclude(node[seg], rest)
	case []any:
		for _, elem := range node {
			exclude(elem, path)
		}
	}
}

// deepCopy clones a JSON-shaped value so projection never aliases store rows.
func deepCopy(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
