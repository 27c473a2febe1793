// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index_test

import (
	"testing"

	"github.com/sigil-dev/glimpse/internal/index"
	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuery_ModeFromInputs(t *testing.T) {
	tests := []struct {
		name    string
		tags    []string
		vec     []float32
		want    index.Mode
		wantErr bool
	}{
		{name: "both", tags: []string{"a"}, vec: []float32{1}, want: index.ModeCombined},
		{name: "vector only", vec: []float32{1}, want: index.ModeEmbedding},
		{name: "tags only", tags: []string{"a"}, want: index.ModeTags},
		{name: "neither", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := index.NewQuery(tt.tags, tt.vec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sigilerr.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Mode())
		})
	}
}

func TestSearch_DispatchesOnQueryKind(t *testing.T) {
	idx := build(t,
		row{"A", []string{"cat", "dog"}, []float32{0, 1}},
		row{"B", []string{"dog"}, []float32{1, 0}},
	)

	res, err := idx.Search(index.TagQuery{Tags: []string{"cat"}}, 2)
	require.NoError(t, err)
	assert.Equal(t, []store.ContentHash{"A", "B"}, ids(res))

	res, err = idx.Search(index.EmbeddingQuery{Vector: []float32{1, 0}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []store.ContentHash{"B"}, ids(res))

	res, err = idx.Search(index.CombinedQuery{Tags: []string{"cat"}, Vector: []float32{0, 1}}, 2)
	require.NoError(t, err)
	assert.Equal(t, store.ContentHash("A"), res[0].ID)
	assert.InDelta(t, 0.75, res[0].Score, 1e-6)

	_, err = idx.Search(index.EmbeddingQuery{Vector: []float32{1, 0, 0}}, 1)
	assert.True(t, sigilerr.IsSchemaMismatch(err))

	_, err = idx.Search(nil, 1)
	assert.True(t, sigilerr.IsInvalidInput(err))
}
