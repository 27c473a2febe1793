// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// ContentStore is the single durable owner of images, tags and embeddings,
// all keyed by ContentHash.
//
// Writes accumulate in a pending transaction until Commit. Reads issued while
// writes are pending observe them. Close commits pending writes before
// releasing the handle.
type ContentStore interface {
	// InsertImage stores the image unless its hash already exists and returns
	// the hash either way. The first writer's extension, timestamp and
	// preview win.
	InsertImage(ctx context.Context, img NewImage) (ContentHash, error)
	// InsertTags replaces the tag set of an existing image.
	InsertTags(ctx context.Context, hash ContentHash, tags []string) error
	// InsertEmbedding replaces the embedding of an existing image.
	InsertEmbedding(ctx context.Context, hash ContentHash, embedding []float32) error
	// InsertDescriptors writes tags and embedding together; either both
	// land or neither does.
	InsertDescriptors(ctx context.Context, hash ContentHash, tags []string, embedding []float32) error

	// RetrieveImage returns the original bytes, or ok=false for an unknown hash.
	RetrieveImage(ctx context.Context, hash ContentHash) (blob Blob, ok bool, err error)
	// RetrievePreview returns the preview, or ok=false for an unknown hash.
	// A known image stored without a preview yields ok=true and nil Data.
	RetrievePreview(ctx context.Context, hash ContentHash) (blob Blob, ok bool, err error)
	// Has reports which rows exist for hash.
	Has(ctx context.Context, hash ContentHash) (Descriptors, error)
	// Incomplete lists images missing tags or an embedding, oldest first.
	// limit <= 0 means no limit.
	Incomplete(ctx context.Context, limit int) ([]ContentHash, error)

	// BuildSnapshot returns every image having both tags and an embedding,
	// in ingestion order.
	BuildSnapshot(ctx context.Context) (*Snapshot, error)
	Stats(ctx context.Context) (Stats, error)

	Commit() error
	Rollback() error
	Close() error
}
