// Package media implements the content-addressed Media Cache (spec §4.F):
// fingerprinting normalized generation parameters and deduplicating
// expensive media generations against the Durable Store.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Fingerprint serializes params into canonical JSON (keys sorted
// recursively, numbers normalized so 1 and 1.0 hash identically), prefixes
// with "kind:", and returns the lowercase hex SHA-256 digest. Grounded on
// the teacher's playground/registry ComputeContentHash pattern.
func Fingerprint(kind string, params map[string]any) string {
	canonical := canonicalize(params)
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", kind, canonical)))
	return hex.EncodeToString(h[:])
}

// canonicalize renders v as JSON with map keys sorted recursively and
// numeric values normalized to their minimal decimal representation, so
// permuted-key or differently-typed-but-equal-valued inputs hash identically.
func canonicalize(v any) string {
	return string(mustMarshalSorted(normalizeNumbers(v)))
}

// normalizeNumbers recursively walks v, converting any float64 that encodes
// an integral value (1.0) to the same representation integers get (so 1 and
// 1.0 produce identical JSON), leaving genuine fractional values untouched.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalizeNumbers(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalizeNumbers(vv)
		}
		return out
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return int64(t)
		}
		return t
	case float32:
		f := float64(t)
		if f == math.Trunc(f) {
			return int64(f)
		}
		return f
	default:
		return v
	}
}

// sortedMap marshals as a JSON object with lexicographically-ordered keys by
// implementing json.Marshaler over a pre-sorted key slice.
type sortedMap map[string]any

func (m sortedMap) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		vb, err := json.Marshal(sortValue(m[k]))
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func sortValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return sortedMap(t)
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = sortValue(vv)
		}
		return out
	default:
		return v
	}
}

func mustMarshalSorted(v any) []byte {
	b, err := json.Marshal(sortValue(v))
	if err != nil {
		// params are always built from decoded JSON/primitives by callers;
		// a marshal failure here indicates a caller bug, not a runtime
		// condition to recover from.
		panic(fmt.Sprintf("media: canonicalize: %v", err))
	}
	return b
}
