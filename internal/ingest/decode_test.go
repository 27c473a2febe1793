// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest_test

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/jpeg"
	"testing"

	"github.com/sigil-dev/glimpse/internal/ingest"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_PNG(t *testing.T) {
	d, err := ingest.Decode(pngBytes(t, 5, 6, 3), "holiday.PNG", ingest.DefaultPreviewHeight)
	require.NoError(t, err)

	assert.Equal(t, ".png", d.Extension)
	assert.Equal(t, "image/png", d.Image.MIMEType)
	assert.Equal(t, 6, d.Image.Pixels.Bounds().Dx())
	assert.Nil(t, d.Timestamp, "png carries no exif")
	assert.Nil(t, d.Preview, "images within the preview height keep no preview")
}

func TestDecode_ExtensionFromFormat(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	d, err := ingest.Decode(buf.Bytes(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, ".jpg", d.Extension)
	assert.Equal(t, "image/jpeg", d.Image.MIMEType)
}

func TestDecode_Preview(t *testing.T) {
	d, err := ingest.Decode(pngBytes(t, 5, 40, 80), "tall.png", 20)
	require.NoError(t, err)
	require.NotEmpty(t, d.Preview)
	assert.Equal(t, ".jpg", d.PreviewExtension)

	preview, format, err := image.Decode(bytes.NewReader(d.Preview))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 20, preview.Bounds().Dy())
	assert.Equal(t, 10, preview.Bounds().Dx())
}

func TestDecode_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "garbage", raw: []byte("GIF89a but not really")},
		{name: "truncated png", raw: pngBytes(t, 1, 4, 4)[:20]},
		{name: "oversized header", raw: withDimensions(pngBytes(t, 1, 4, 4), 60000, 60000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingest.Decode(tt.raw, tt.name, 0)
			require.Error(t, err)
			assert.True(t, sigilerr.HasCode(err, sigilerr.CodeIngestImageDecodeFailure))
		})
	}
}

// withDimensions rewrites the IHDR width and height of a PNG, leaving the
// pixel data as it was.
func withDimensions(raw []byte, w, h uint32) []byte {
	out := bytes.Clone(raw)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecode_RejectsHugeDimensionsFromHeader(t *testing.T) {
	raw := withDimensions(pngBytes(t, 1, 4, 4), 20000, 20000)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err, "header stays well formed")
	require.Equal(t, 20000, cfg.Width)

	_, err = ingest.Decode(raw, "bomb.png", 0)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeIngestImageDecodeFailure))
	assert.Contains(t, err.Error(), "dimensions out of range")
}
