package utils

import "strings"

// LookupPath resolves a dotted path ("user.department.name") inside a
// nested string-keyed bag. It returns the resolved value and whether the
// full path existed. A nil value at the leaf is reported as not found so
// callers can treat null and missing uniformly.
func LookupPath(bag map[string]any, path string) (any, bool) {
	if bag == nil || path == "" {
		return nil, false
	}
	cur := any(bag)
	for _, key := range strings.Split(path, ".") {
		m, ok := toStringMap(cur)
		if !ok {
			return nil, false
		}
		next, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}
