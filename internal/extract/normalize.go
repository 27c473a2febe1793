// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extract

import (
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Normalize scales v to unit L2 norm in place and returns it. A zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) * inv)
	}
	return v
}

// FromFloat64 converts an embedding returned as float64 values.
func FromFloat64(v []float64) []float32 {
	return lo.Map(v, func(x float64, _ int) float32 { return float32(x) })
}

// Mean returns the element-wise mean of equal-width vectors, without
// renormalising. It returns nil for no input.
func Mean(vectors ...[]float32) []float32 {
	vectors = lo.Filter(vectors, func(v []float32, _ int) bool { return len(v) > 0 })
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float32, len(vectors[0]))
	for _, v := range vectors {
		for i := range out {
			if i < len(v) {
				out[i] += v[i]
			}
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}

// NormalizeTags lowercases and trims tags, drops empties and duplicates, and
// keeps at most limit tags in first-seen order. limit <= 0 keeps all.
func NormalizeTags(tags []string, limit int) []string {
	cleaned := lo.Map(tags, func(t string, _ int) string {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.Trim(t, `"'.*-•`+"`")
		return strings.Join(strings.Fields(t), " ")
	})
	out := lo.Uniq(lo.Compact(cleaned))
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return slices.Clip(out)
}
