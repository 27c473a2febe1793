// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest

import (
	"bytes"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp" // register decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/sigil-dev/glimpse/internal/extract"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// DefaultPreviewHeight bounds the height of stored previews.
const DefaultPreviewHeight = 256

// MaxPixels caps the declared dimensions of an image accepted for decoding.
// Headers are checked before any pixel buffer is allocated.
const MaxPixels = 100_000_000

// previewQuality is the JPEG quality previews are encoded with.
const previewQuality = 85

// Decoded is an image that decoded successfully, with its derived data.
type Decoded struct {
	Image            extract.Image
	Extension        string
	Timestamp        *time.Time
	Preview          []byte
	PreviewExtension string
}

// Decode validates raw as an image and derives its preview and capture
// time. A failure is a DecodeFailure. previewHeight <= 0 disables previews.
func Decode(raw []byte, name string, previewHeight int) (*Decoded, error) {
	if len(raw) == 0 {
		return nil, sigilerr.New(sigilerr.CodeIngestImageDecodeFailure, "image is empty", sigilerr.FieldPath(name))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIngestImageDecodeFailure, "reading image header", sigilerr.FieldPath(name))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, sigilerr.New(sigilerr.CodeIngestImageDecodeFailure, "image dimensions out of range",
			sigilerr.FieldPath(name), sigilerr.Field("width", cfg.Width), sigilerr.Field("height", cfg.Height))
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIngestImageDecodeFailure, "decoding image", sigilerr.FieldPath(name))
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, sigilerr.New(sigilerr.CodeIngestImageDecodeFailure, "image has no pixels", sigilerr.FieldPath(name))
	}

	d := &Decoded{
		Image:     extract.Image{Data: raw, MIMEType: "image/" + format, Pixels: img},
		Extension: extensionFor(name, format),
		Timestamp: captureTime(raw),
	}

	if previewHeight > 0 && img.Bounds().Dy() > previewHeight {
		preview, err := encodePreview(img, previewHeight)
		if err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeIngestImageDecodeFailure, "encoding preview", sigilerr.FieldPath(name))
		}
		d.Preview = preview
		d.PreviewExtension = ".jpg"
	}
	return d, nil
}

// extensionFor prefers the file's own extension and falls back to the
// decoded format.
func extensionFor(name, format string) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		return ext
	}
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}

// captureTime returns the EXIF DateTimeOriginal, or nil when absent.
func captureTime(raw []byte) *time.Time {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

// encodePreview scales img to height, keeping its aspect ratio.
func encodePreview(img image.Image, height int) ([]byte, error) {
	b := img.Bounds()
	width := max(1, b.Dx()*height/b.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
