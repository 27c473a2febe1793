// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/sigil-dev/glimpse/internal/store"
	"github.com/sigil-dev/glimpse/internal/store/sqlite"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, name string) (*sqlite.ContentStore, string) {
	t.Helper()
	path := testDBPath(t, name)
	cs, err := sqlite.NewContentStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs, path
}

func TestContentStore_InsertImageIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "idempotent")

	raw := []byte("png-bytes")
	h1, err := cs.InsertImage(ctx, store.NewImage{Raw: raw, Extension: ".png"})
	require.NoError(t, err)
	h2, err := cs.InsertImage(ctx, store.NewImage{Raw: raw, Extension: ".jpg"})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, store.HashBytes(raw), h1)

	require.NoError(t, cs.Commit())

	stats, err := cs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Images)

	blob, ok, err := cs.RetrieveImage(ctx, h1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, raw, blob.Data)
	assert.Equal(t, ".png", blob.Extension, "first writer wins")
}

func TestContentStore_InsertImageRejectsEmptyBytes(t *testing.T) {
	cs, _ := newStore(t, "empty-bytes")
	_, err := cs.InsertImage(context.Background(), store.NewImage{Extension: ".png"})
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestContentStore_RetrieveUnknownHash(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "unknown")

	unknown := store.HashBytes([]byte("never stored"))

	_, ok, err := cs.RetrieveImage(ctx, unknown)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cs.RetrievePreview(ctx, unknown)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContentStore_Preview(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "preview")

	withPreview, err := cs.InsertImage(ctx, store.NewImage{
		Raw: []byte("big"), Extension: ".png", Preview: []byte("small"), PreviewExtension: ".jpg",
	})
	require.NoError(t, err)
	without, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("other"), Extension: ".png"})
	require.NoError(t, err)

	blob, ok, err := cs.RetrievePreview(ctx, withPreview)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("small"), blob.Data)
	assert.Equal(t, ".jpg", blob.Extension)

	blob, ok, err = cs.RetrievePreview(ctx, without)
	require.NoError(t, err)
	assert.True(t, ok, "known image without preview is still found")
	assert.Nil(t, blob.Data)
}

func TestContentStore_ReferentialIntegrity(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "referential")

	missing := store.HashBytes([]byte("no such image"))

	err := cs.InsertTags(ctx, missing, []string{"cat"})
	require.Error(t, err)
	assert.True(t, sigilerr.IsReferentialViolation(err))

	err = cs.InsertEmbedding(ctx, missing, []float32{1, 0})
	require.Error(t, err)
	assert.True(t, sigilerr.IsReferentialViolation(err))

	err = cs.InsertDescriptors(ctx, missing, []string{"cat"}, []float32{1, 0})
	require.Error(t, err)
	assert.True(t, sigilerr.IsReferentialViolation(err))

	require.NoError(t, cs.Commit())
	stats, err := cs.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Tagged)
	assert.Zero(t, stats.Embedded)
}

func TestContentStore_EmptyEmbeddingRejected(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "empty-embedding")

	h, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("x"), Extension: ".png"})
	require.NoError(t, err)

	err = cs.InsertEmbedding(ctx, h, nil)
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestContentStore_ReingestReplacesDescriptors(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "replace")

	h, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("img"), Extension: ".png"})
	require.NoError(t, err)

	require.NoError(t, cs.InsertDescriptors(ctx, h, []string{"cat", "dog"}, []float32{1, 0}))
	require.NoError(t, cs.InsertDescriptors(ctx, h, []string{"bird"}, []float32{0, 1}))
	require.NoError(t, cs.Commit())

	snap, err := cs.BuildSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, []string{"bird"}, snap.Tags[0], "tags are replaced, not merged")
	assert.Equal(t, []float32{0, 1}, snap.Embeddings[0])
}

func TestContentStore_TagsNormalized(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "normalized")

	h, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("img"), Extension: ".png"})
	require.NoError(t, err)
	require.NoError(t, cs.InsertTags(ctx, h, []string{"dog", "cat", "dog", ""}))
	require.NoError(t, cs.InsertEmbedding(ctx, h, []float32{1}))

	snap, err := cs.BuildSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, []string{"cat", "dog"}, snap.Tags[0])
}

func TestContentStore_SnapshotIsInnerJoinInIngestionOrder(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "snapshot")

	var hashes []store.ContentHash
	for _, raw := range []string{"zzz", "aaa", "mmm", "tags-only", "embedding-only", "bare"} {
		h, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte(raw), Extension: ".png"})
		require.NoError(t, err)
		hashes = append(hashes, h)
	}

	// Descriptors written out of ingestion order.
	require.NoError(t, cs.InsertDescriptors(ctx, hashes[2], []string{"m"}, []float32{0, 0, 1}))
	require.NoError(t, cs.InsertDescriptors(ctx, hashes[0], []string{"z"}, []float32{1, 0, 0}))
	require.NoError(t, cs.InsertDescriptors(ctx, hashes[1], []string{}, []float32{0, 1, 0}))
	require.NoError(t, cs.InsertTags(ctx, hashes[3], []string{"t"}))
	require.NoError(t, cs.InsertEmbedding(ctx, hashes[4], []float32{1, 1, 1}))
	require.NoError(t, cs.Commit())

	snap, err := cs.BuildSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.ContentHash{hashes[0], hashes[1], hashes[2]}, snap.IDs)
	assert.Equal(t, [][]string{{"z"}, {}, {"m"}}, snap.Tags)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, snap.Embeddings)

	incomplete, err := cs.Incomplete(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []store.ContentHash{hashes[3], hashes[4], hashes[5]}, incomplete)

	limited, err := cs.Incomplete(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []store.ContentHash{hashes[3]}, limited)
}

func TestContentStore_EmptySnapshot(t *testing.T) {
	cs, _ := newStore(t, "empty-snapshot")

	snap, err := cs.BuildSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Len())
}

func TestContentStore_RollbackDiscardsPendingWrites(t *testing.T) {
	ctx := context.Background()
	cs, _ := newStore(t, "rollback")

	kept, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("kept"), Extension: ".png"})
	require.NoError(t, err)
	require.NoError(t, cs.Commit())

	dropped, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("dropped"), Extension: ".png"})
	require.NoError(t, err)

	// Pending writes are visible before commit.
	_, ok, err := cs.RetrieveImage(ctx, dropped)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cs.Rollback())

	_, ok, err = cs.RetrieveImage(ctx, dropped)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cs.RetrieveImage(ctx, kept)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContentStore_CloseCommitsPendingWrites(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "close-commits")

	cs, err := sqlite.NewContentStore(path)
	require.NoError(t, err)
	ts := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	h, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("durable"), Extension: ".jpg", Timestamp: &ts})
	require.NoError(t, err)
	require.NoError(t, cs.InsertDescriptors(ctx, h, []string{"sky"}, []float32{0.6, 0.8}))
	require.NoError(t, cs.Close())
	require.NoError(t, cs.Close(), "second close is a no-op")

	reopened, err := sqlite.NewContentStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	d, err := reopened.Has(ctx, h)
	require.NoError(t, err)
	assert.True(t, d.Complete())
}

func TestContentStore_UseAfterClose(t *testing.T) {
	cs, err := sqlite.NewContentStore(testDBPath(t, "closed"))
	require.NoError(t, err)
	require.NoError(t, cs.Close())

	_, err = cs.InsertImage(context.Background(), store.NewImage{Raw: []byte("x")})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreClosed))

	_, _, err = cs.RetrieveImage(context.Background(), store.HashBytes([]byte("x")))
	require.Error(t, err)
}

func TestContentStore_ReadOnly(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "read-only")

	rw, err := sqlite.NewContentStore(path)
	require.NoError(t, err)
	h, err := rw.InsertImage(ctx, store.NewImage{Raw: []byte("ro"), Extension: ".png"})
	require.NoError(t, err)
	require.NoError(t, rw.InsertDescriptors(ctx, h, []string{"a"}, []float32{1}))
	require.NoError(t, rw.Close())

	ro, err := sqlite.OpenReadOnly(path)
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()

	blob, ok, err := ro.RetrieveImage(ctx, h)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("ro"), blob.Data)

	_, err = ro.InsertImage(ctx, store.NewImage{Raw: []byte("new"), Extension: ".png"})
	require.Error(t, err)
	assert.True(t, sigilerr.IsReadOnly(err))

	err = ro.InsertTags(ctx, h, []string{"b"})
	require.Error(t, err)
	assert.True(t, sigilerr.IsReadOnly(err))

	stats, err := ro.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.ReadOnly)
}

func TestOpenReadOnly_MissingFile(t *testing.T) {
	_, err := sqlite.OpenReadOnly(testDBPath(t, "missing"))
	require.Error(t, err)
}

func TestContentStore_Stats(t *testing.T) {
	ctx := context.Background()
	cs, path := newStore(t, "stats")

	a, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("aaaa"), Extension: ".png", Preview: []byte("p"), PreviewExtension: ".png"})
	require.NoError(t, err)
	b, err := cs.InsertImage(ctx, store.NewImage{Raw: []byte("bb"), Extension: ".png"})
	require.NoError(t, err)
	require.NoError(t, cs.InsertDescriptors(ctx, a, []string{"x", "y"}, []float32{1, 0, 0}))
	require.NoError(t, cs.InsertTags(ctx, b, []string{}))
	require.NoError(t, cs.Commit())

	stats, err := cs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Images)
	assert.Equal(t, int64(1), stats.Previews)
	assert.Equal(t, int64(2), stats.Tagged)
	assert.Equal(t, int64(1), stats.Embedded)
	assert.Equal(t, int64(1), stats.Indexable)
	assert.Equal(t, int64(6), stats.Bytes)
	assert.InDelta(t, 1.0, stats.MeanTagsPerRow, 1e-9)
	assert.Equal(t, []int{3}, stats.EmbeddingWidths)
	assert.Equal(t, path, stats.Path)
}
