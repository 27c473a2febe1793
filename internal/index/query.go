// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import sigilerr "github.com/sigil-dev/glimpse/pkg/errors"

// Mode names the kind of a Query.
type Mode string

const (
	ModeTags      Mode = "tags"
	ModeEmbedding Mode = "embedding"
	ModeCombined  Mode = "combined"
)

// Query is one of TagQuery, EmbeddingQuery or CombinedQuery.
type Query interface {
	Mode() Mode
	search(x *Index, k int) ([]Result, error)
}

// TagQuery ranks by tag overlap.
type TagQuery struct {
	Tags []string
}

// EmbeddingQuery ranks by dot product.
type EmbeddingQuery struct {
	Vector []float32
}

// CombinedQuery ranks by the mean of tag overlap and dot product.
type CombinedQuery struct {
	Tags   []string
	Vector []float32
}

func (TagQuery) Mode() Mode       { return ModeTags }
func (EmbeddingQuery) Mode() Mode { return ModeEmbedding }
func (CombinedQuery) Mode() Mode  { return ModeCombined }

func (q TagQuery) search(x *Index, k int) ([]Result, error) {
	return x.FindByTags(q.Tags, k), nil
}

func (q EmbeddingQuery) search(x *Index, k int) ([]Result, error) {
	return x.FindByEmbedding(q.Vector, k)
}

func (q CombinedQuery) search(x *Index, k int) ([]Result, error) {
	return x.FindCombined(q.Tags, q.Vector, k)
}

// NewQuery picks the query kind from which inputs are present: both gives
// a CombinedQuery, a vector alone an EmbeddingQuery, tags alone a TagQuery.
// It fails when neither is present.
func NewQuery(tags []string, vec []float32) (Query, error) {
	switch {
	case len(tags) > 0 && len(vec) > 0:
		return CombinedQuery{Tags: tags, Vector: vec}, nil
	case len(vec) > 0:
		return EmbeddingQuery{Vector: vec}, nil
	case len(tags) > 0:
		return TagQuery{Tags: tags}, nil
	default:
		return nil, sigilerr.New(sigilerr.CodeSearchRequestInvalid, "query needs tags, an embedding, or both")
	}
}

// Search runs q against the index and returns at most k results.
func (x *Index) Search(q Query, k int) ([]Result, error) {
	if q == nil {
		return nil, sigilerr.New(sigilerr.CodeSearchRequestInvalid, "query is nil")
	}
	return q.search(x, k)
}
