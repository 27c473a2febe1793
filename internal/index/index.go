// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package index holds the in-memory retrieval index built from a store
// snapshot. An Index is immutable after Build and safe for concurrent use
// without locking.
package index

import (
	"math"
	"slices"

	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// Result is a single ranked match.
type Result struct {
	ID    store.ContentHash `json:"id"`
	Score float64           `json:"score"`
}

// Index answers exact nearest-neighbour queries over a snapshot.
type Index struct {
	ids  []store.ContentHash
	tags [][]string // sorted per row
	// vectors is a row-major len(ids) x dim matrix.
	vectors []float32
	dim     int
}

// Build validates snap and copies it into a new Index. The snapshot may be
// reused or discarded by the caller afterwards.
//
// Every row must carry tags and an embedding, and all embeddings must share
// one width; otherwise Build fails with a schema mismatch and returns no
// index. An empty snapshot yields an empty index.
func Build(snap *store.Snapshot) (*Index, error) {
	if snap == nil {
		return &Index{}, nil
	}

	n := len(snap.IDs)
	if len(snap.Tags) != n || len(snap.Embeddings) != n {
		return nil, sigilerr.Errorf(sigilerr.CodeIndexBuildSchemaMismatch,
			"snapshot columns are misaligned: %d ids, %d tag sets, %d embeddings",
			n, len(snap.Tags), len(snap.Embeddings))
	}
	if n == 0 {
		return &Index{}, nil
	}

	dim := len(snap.Embeddings[0])
	if dim == 0 {
		return nil, sigilerr.New(sigilerr.CodeIndexBuildSchemaMismatch, "snapshot embedding is empty",
			sigilerr.FieldHash(string(snap.IDs[0])))
	}

	idx := &Index{
		ids:     slices.Clone(snap.IDs),
		tags:    make([][]string, n),
		vectors: make([]float32, 0, n*dim),
		dim:     dim,
	}
	for i, vec := range snap.Embeddings {
		if len(vec) != dim {
			return nil, sigilerr.New(sigilerr.CodeIndexBuildSchemaMismatch,
				"snapshot embeddings have inconsistent widths",
				sigilerr.FieldHash(string(snap.IDs[i])),
				sigilerr.Field("want", dim),
				sigilerr.Field("got", len(vec)))
		}
		idx.vectors = append(idx.vectors, vec...)

		t := slices.Clone(snap.Tags[i])
		slices.Sort(t)
		idx.tags[i] = slices.Compact(t)
	}
	return idx, nil
}

// Len returns the number of indexed images.
func (x *Index) Len() int { return len(x.ids) }

// Dim returns the embedding width, or 0 for an empty index.
func (x *Index) Dim() int { return x.dim }

// Tags returns the sorted distinct tags present in the index.
func (x *Index) Tags() []string {
	var all []string
	for _, t := range x.tags {
		all = append(all, t...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}

func (x *Index) row(i int) []float32 {
	return x.vectors[i*x.dim : (i+1)*x.dim]
}

// checkWidth rejects a query vector whose width differs from the index.
// An empty index accepts any width.
func (x *Index) checkWidth(vec []float32) error {
	if x.Len() == 0 || len(vec) == x.dim {
		return nil
	}
	return sigilerr.New(sigilerr.CodeIndexQuerySchemaMismatch, "query embedding width does not match index",
		sigilerr.Field("want", x.dim), sigilerr.Field("got", len(vec)))
}

// rank orders scores descending, ties by snapshot position, and keeps the
// first k. NaN scores sort after every number.
func (x *Index) rank(scores []float64, k int) []Result {
	if k <= 0 || x.Len() == 0 {
		return []Result{}
	}
	results := make([]Result, len(scores))
	for i, s := range scores {
		results[i] = Result{ID: x.ids[i], Score: s}
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		aNaN, bNaN := math.IsNaN(a.Score), math.IsNaN(b.Score)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return 1
		case bNaN:
			return -1
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return results[:min(k, len(results))]
}
