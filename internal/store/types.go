// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"crypto/sha1" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
	"time"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// HashLength is the width of a hex-encoded ContentHash.
const HashLength = sha1.Size * 2

// ContentHash is the lowercase hex SHA-1 digest of an image's raw bytes.
// Two images with identical bytes always share a hash.
type ContentHash string

// HashBytes computes the ContentHash of raw image bytes.
func HashBytes(raw []byte) ContentHash {
	sum := sha1.Sum(raw) //nolint:gosec
	return ContentHash(hex.EncodeToString(sum[:]))
}

// ParseContentHash validates s as a ContentHash.
func ParseContentHash(s string) (ContentHash, error) {
	if len(s) != HashLength {
		return "", sigilerr.New(sigilerr.CodeStoreHashInvalid,
			"content hash must be 40 hex characters", sigilerr.FieldHash(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", sigilerr.New(sigilerr.CodeStoreHashInvalid,
				"content hash must be lowercase hex", sigilerr.FieldHash(s))
		}
	}
	return ContentHash(s), nil
}

func (h ContentHash) String() string { return string(h) }

// NewImage is the input to ContentStore.InsertImage. Preview is optional.
type NewImage struct {
	Raw              []byte
	Extension        string
	Timestamp        *time.Time
	Preview          []byte
	PreviewExtension string
}

// Blob is a stored byte payload plus the extension it was stored with.
type Blob struct {
	Data      []byte
	Extension string
}

// Descriptors reports which rows exist for a hash.
type Descriptors struct {
	Image     bool
	Tags      bool
	Embedding bool
}

// Complete reports whether the image has both descriptors.
func (d Descriptors) Complete() bool {
	return d.Image && d.Tags && d.Embedding
}

// Snapshot is a point-in-time copy of every image that has both tags and
// an embedding, in ingestion order. The three slices are index-aligned.
type Snapshot struct {
	IDs        []ContentHash
	Tags       [][]string
	Embeddings [][]float32
}

// Len returns the number of rows in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.IDs)
}

// Stats summarises the contents of a store.
type Stats struct {
	Images          int64   `json:"images" yaml:"images"`
	Previews        int64   `json:"previews" yaml:"previews"`
	Tagged          int64   `json:"tagged" yaml:"tagged"`
	Embedded        int64   `json:"embedded" yaml:"embedded"`
	Indexable       int64   `json:"indexable" yaml:"indexable"`
	EmbeddingWidths []int   `json:"embedding_widths" yaml:"embedding_widths"`
	Bytes           int64   `json:"bytes" yaml:"bytes"`
	ReadOnly        bool    `json:"read_only" yaml:"read_only"`
	Backend         string  `json:"backend" yaml:"backend"`
	Path            string  `json:"path" yaml:"path"`
	MeanTagsPerRow  float64 `json:"mean_tags_per_row" yaml:"mean_tags_per_row"`
}
