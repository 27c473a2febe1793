// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package extract defines the model-backed collaborators that turn images
// and text into tags and embeddings, plus the helpers shared by their
// provider implementations.
package extract

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"slices"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// Image is a decoded image handed to extractors. Data holds the original
// encoded bytes and MIMEType their media type; Pixels is the decoded form.
type Image struct {
	Data     []byte
	MIMEType string
	Pixels   image.Image
}

// Tagger maps each image to a set of free-text tags. Implementations
// return exactly one tag set per input image, in input order.
type Tagger interface {
	Name() string
	ExtractTags(ctx context.Context, images []Image) ([][]string, error)
}

// ImageEmbedder maps each image to a unit-norm vector of a fixed width,
// in input order.
type ImageEmbedder interface {
	Name() string
	EmbedImages(ctx context.Context, images []Image) ([][]float32, error)
}

// TextEmbedder maps text into the same space as ImageEmbedder.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Embedder embeds both images and text.
type Embedder interface {
	ImageEmbedder
	TextEmbedder
}

// Availability is implemented by extractors that track upstream health.
type Availability interface {
	Available(ctx context.Context) bool
}

// Upload returns bytes in one of the accepted media types, re-encoding the
// decoded pixels as PNG when the original format is not accepted.
func (img Image) Upload(accepted ...string) ([]byte, string, error) {
	if len(accepted) == 0 || slices.Contains(accepted, img.MIMEType) {
		return img.Data, img.MIMEType, nil
	}
	if img.Pixels == nil {
		return nil, "", sigilerr.Errorf(sigilerr.CodeExtractRequestInvalid,
			"image type %q is not accepted and no decoded pixels are available", img.MIMEType)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Pixels); err != nil {
		return nil, "", sigilerr.Errorf(sigilerr.CodeExtractRequestInvalid, "re-encoding image as png: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

// CheckCount fails when an extractor returned a different number of
// results than it was given images.
func CheckCount(provider string, want, got int) error {
	if want == got {
		return nil
	}
	return sigilerr.New(sigilerr.CodeExtractResponseInvalid, "extractor returned wrong number of results",
		sigilerr.FieldProvider(provider), sigilerr.Field("want", want), sigilerr.Field("got", got))
}
