// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sigil-dev/glimpse/internal/extract"
	"github.com/sigil-dev/glimpse/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// pngBytes renders a solid w x h image whose colour is derived from seed,
// so distinct seeds produce distinct content hashes.
func pngBytes(t *testing.T, seed uint8, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: seed, G: 255 - seed, B: seed / 2, A: 255}
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newStore(t *testing.T) *sqlite.ContentStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "glimpse-ingest-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cs, err := sqlite.NewContentStore(filepath.Join(dir, "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// fakeTagger returns one fixed tag per image and records every call.
type fakeTagger struct {
	mu     sync.Mutex
	calls  [][]extract.Image
	err    error
	before func()
}

func (f *fakeTagger) Name() string { return "fake-tagger" }

func (f *fakeTagger) ExtractTags(ctx context.Context, images []extract.Image) ([][]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, images)
	f.mu.Unlock()
	if f.before != nil {
		f.before()
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]string, len(images))
	for i := range images {
		out[i] = []string{"solid", "square"}
	}
	return out, nil
}

func (f *fakeTagger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeEmbedder returns a unit vector per image, or the vectors in out
// when set.
type fakeEmbedder struct {
	calls int
	out   [][]float32
	err   error
}

func (f *fakeEmbedder) Name() string { return "fake-embedder" }

func (f *fakeEmbedder) EmbedImages(_ context.Context, images []extract.Image) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	vecs := make([][]float32, len(images))
	for i := range images {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

// unavailable is an extractor whose health tracker says it is cooling down.
type unavailableTagger struct{ fakeTagger }

func (*unavailableTagger) Available(context.Context) bool { return false }

var errUpstream = errors.New("upstream exploded")
