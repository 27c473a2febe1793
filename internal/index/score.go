// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import "slices"

// TagOverlap returns |query ∩ tags| / |tags|, or 0 when tags is empty.
// The denominator is the candidate's tag count, not the query's: a
// candidate whose every tag is requested scores 1 regardless of how many
// extra query tags there are.
//
// Both slices must be sorted and free of duplicates.
func TagOverlap(query, tags []string) float64 {
	if len(tags) == 0 {
		return 0
	}
	hits := 0
	i, j := 0, 0
	for i < len(query) && j < len(tags) {
		switch {
		case query[i] == tags[j]:
			hits++
			i++
			j++
		case query[i] < tags[j]:
			i++
		default:
			j++
		}
	}
	return float64(hits) / float64(len(tags))
}

// Dot returns the inner product of equal-length vectors, accumulated in
// float64.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalizeQueryTags sorts and de-duplicates query tags so TagOverlap can
// merge them against stored rows.
func normalizeQueryTags(tags []string) []string {
	q := slices.Clone(tags)
	slices.Sort(q)
	return slices.Compact(q)
}

func (x *Index) tagScores(query []string) []float64 {
	q := normalizeQueryTags(query)
	scores := make([]float64, x.Len())
	for i, t := range x.tags {
		scores[i] = TagOverlap(q, t)
	}
	return scores
}

func (x *Index) embeddingScores(vec []float32) []float64 {
	scores := make([]float64, x.Len())
	for i := range scores {
		scores[i] = Dot(x.row(i), vec)
	}
	return scores
}

// FindByTags ranks every image by tag overlap with tags.
func (x *Index) FindByTags(tags []string, k int) []Result {
	if k <= 0 || x.Len() == 0 {
		return []Result{}
	}
	return x.rank(x.tagScores(tags), k)
}

// FindByEmbedding ranks every image by dot product with vec. Rows scoring
// NaN rank last.
func (x *Index) FindByEmbedding(vec []float32, k int) ([]Result, error) {
	if err := x.checkWidth(vec); err != nil {
		return nil, err
	}
	if k <= 0 || x.Len() == 0 {
		return []Result{}, nil
	}
	return x.rank(x.embeddingScores(vec), k), nil
}

// FindCombined ranks every image by the mean of its tag overlap and dot
// product scores. Candidates are ranked once on the combined score.
func (x *Index) FindCombined(tags []string, vec []float32, k int) ([]Result, error) {
	if err := x.checkWidth(vec); err != nil {
		return nil, err
	}
	if k <= 0 || x.Len() == 0 {
		return []Result{}, nil
	}
	ts := x.tagScores(tags)
	es := x.embeddingScores(vec)
	for i := range ts {
		ts[i] = (ts[i] + es[i]) / 2
	}
	return x.rank(ts, k), nil
}
