// Package cache implements the Unified Semantic Cache (C2): a
// provider/operation-scoped cache with address normalization, spatial
// matching and TTL policies, grounded on the original service's
// providers/cache.py.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// coordinateKeys lists the param keys that are rounded to 3 decimals
// (~111m) during normalization, so cache keys are stable across the tiny
// float jitter a caller's own computation may introduce.
var coordinateKeys = map[string]bool{
	"latitude": true, "longitude": true, "lat": true, "lon": true,
	"origin_lat": true, "origin_lon": true, "dest_lat": true, "dest_lon": true,
}

// GenerateKey builds the cache key "{provider}:{operation}:{md5}" from a
// canonical JSON encoding of the normalized params.
func GenerateKey(provider, operation string, params map[string]any) string {
	normalized := normalizeParams(params)

	canonical, err := canonicalJSON(normalized)
	if err != nil {
		// canonicalJSON only fails on non-marshalable values, which callers
		// never pass for cache params; treat as empty rather than panic.
		canonical = []byte("{}")
	}

	sum := md5.Sum(canonical)
	return fmt.Sprintf("%s:%s:%s", provider, operation, hex.EncodeToString(sum[:]))
}

func normalizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = normalizeValue(k, v)
	}
	return out
}

func normalizeValue(key string, v any) any {
	switch val := v.(type) {
	case string:
		return normalizeWhitespace(strings.ToLower(val))
	case float64:
		if coordinateKeys[key] {
			return roundTo(val, 3)
		}
		return val
	case []any:
		normalized := make([]any, len(val))
		for i, item := range val {
			normalized[i] = normalizeValue(key, item)
		}
		sort.Slice(normalized, func(i, j int) bool {
			return fmt.Sprint(normalized[i]) < fmt.Sprint(normalized[j])
		})
		return normalized
	default:
		return v
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

// canonicalJSON marshals v with map keys sorted, which encoding/json already
// guarantees for map[string]any — kept as a named step so the key-generation
// algorithm reads the same as the source's explicit "canonical JSON" step.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
