package storage

import (
	"encoding/json"
	"hash/fnv"
	"sort"
)

// Checksum computes the deterministic 32-bit hash contract of spec.md §6:
// marshal v to JSON with map keys sorted recursively (Go's encoding/json
// already sorts map[string]any keys on marshal) and with "checksum" and
// "timestamp" fields excluded, then FNV-1a hash the bytes. FNV-1a is used
// because no pack repo imports a third-party checksum library for this
// exact "stable fingerprint of a sorted JSON structure" shape (see
// DESIGN.md).
func Checksum(v any) (uint32, error) {
	normalized := stripChecksumFields(toGeneric(v))
	data, err := json.Marshal(normalized)
	if err != nil {
		return 0, err
	}
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32(), nil
}

// toGeneric round-trips v through JSON so struct field order doesn't matter
// and map keys sort deterministically on the way back out.
func toGeneric(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return v
	}
	return generic
}

func stripChecksumFields(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			if k == "checksum" || k == "timestamp" {
				continue
			}
			out[k] = stripChecksumFields(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = stripChecksumFields(sub)
		}
		return out
	default:
		return v
	}
}

// sortedKeys is a small helper used by callers that need to present a
// deterministic key order outside of JSON marshaling (e.g. building a
// manifest entity list).
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
