// pkg/model/expand.go
package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ExpandRecord turns dot-notation keys into nested maps.
//
//	{"a.b": 1, "a.c": 2, "d": 3} => {"a": {"b": 1, "c": 2}, "d": 3}
//
// Paths are applied in a fixed order (shallow first, then lexical) so the
// result does not depend on map iteration. When a scalar and a map land on
// the same path the map wins and the scalar is dropped.
func ExpandRecord(flat map[string]interface{}) Record {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		di, dj := strings.Count(keys[i], "."), strings.Count(keys[j], ".")
		if di != dj {
			return di < dj
		}
		return keys[i] < keys[j]
	})

	result := make(map[string]interface{}, len(flat))
	for _, key := range keys {
		DeepMerge(result, nest(strings.Split(key, "."), flat[key]))
	}
	return Record(result)
}

// nest builds {p0: {p1: ... {pn: value}}}
func nest(path []string, value interface{}) map[string]interface{} {
	out := map[string]interface{}{path[len(path)-1]: value}
	for i := len(path) - 2; i >= 0; i-- {
		out = map[string]interface{}{path[i]: out}
	}
	return out
}

// DeepMerge merges src into dst. Nested maps merge key by key, other values
// overwrite, except that an existing map is never replaced by a scalar.
func DeepMerge(dst, src map[string]interface{}) map[string]interface{} {
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists {
			dst[k] = sv
			continue
		}

		dm, dIsMap := asMap(dv)
		sm, sIsMap := asMap(sv)
		switch {
		case dIsMap && sIsMap:
			dst[k] = DeepMerge(dm, sm)
		case dIsMap:
			// keep the mapping
		default:
			dst[k] = sv
		}
	}
	return dst
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Record:
		return map[string]interface{}(m), true
	default:
		return nil, false
	}
}

func stringify(v interface{}) string {
	switch v.(type) {
	case map[string]interface{}, []interface{}, Record:
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}
