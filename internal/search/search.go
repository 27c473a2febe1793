// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package search answers queries against the current retrieval index and
// resolves results back to stored bytes. The index is replaced wholesale
// on Reload; in-flight queries keep the index they started with.
package search

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/glimpse/internal/extract"
	"github.com/sigil-dev/glimpse/internal/index"
	"github.com/sigil-dev/glimpse/internal/ingest"
	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/sigil-dev/glimpse/pkg/health"
)

// DefaultTopK is the result count used when a request leaves K unset.
const DefaultTopK = 10

// Config configures a Service.
type Config struct {
	TopK       int
	Vocabulary *extract.Vocabulary
	Logger     *slog.Logger
}

// Request is a query. At least one of Image, Text or Tags must be set.
// K == 0 uses the configured default; a negative K yields no results.
type Request struct {
	Image []byte   `json:"image,omitempty"`
	Text  string   `json:"text,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	K     int      `json:"k,omitempty"`
}

// Response is a ranked result list plus the query that produced it.
type Response struct {
	Mode    index.Mode     `json:"mode"`
	Tags    []string       `json:"tags"`
	Results []index.Result `json:"results"`
}

// Stats combines store counts with the state of the loaded index.
type Stats struct {
	Store       store.Stats `json:"store" yaml:"store"`
	IndexLoaded bool        `json:"index_loaded" yaml:"index_loaded"`
	IndexRows   int         `json:"index_rows" yaml:"index_rows"`
	IndexDim    int         `json:"index_dim" yaml:"index_dim"`
	LoadedAt    time.Time   `json:"loaded_at,omitzero" yaml:"loaded_at,omitempty"`
}

type loaded struct {
	idx *index.Index
	at  time.Time
}

// Service owns the current index and the collaborators needed to turn a
// Request into a Query.
type Service struct {
	store    store.ContentStore
	tagger   extract.Tagger
	embedder extract.Embedder
	vocab    *extract.Vocabulary
	topK     int
	logger   *slog.Logger

	current atomic.Pointer[loaded]
}

// New creates a Service. tagger and embedder may be nil; requests that need
// them then fail as unavailable. The index starts unloaded.
func New(cfg Config, cs store.ContentStore, tagger extract.Tagger, embedder extract.Embedder) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    cs,
		tagger:   tagger,
		embedder: embedder,
		vocab:    cfg.Vocabulary,
		topK:     cfg.TopK,
		logger:   logger,
	}
}

// Reload snapshots the store and swaps in a freshly built index. On
// failure the previous index stays in place.
func (s *Service) Reload(ctx context.Context) (*index.Index, error) {
	start := time.Now()
	snap, err := s.store.BuildSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := index.Build(snap)
	if err != nil {
		s.logger.Error("index rebuild failed; keeping previous index", "error", err)
		return nil, err
	}
	s.current.Store(&loaded{idx: idx, at: time.Now()})
	s.logger.Info("index loaded", "rows", idx.Len(), "dim", idx.Dim(), "took", time.Since(start))
	return idx, nil
}

// Index returns the current index, or nil before the first Reload.
func (s *Service) Index() *index.Index {
	if l := s.current.Load(); l != nil {
		return l.idx
	}
	return nil
}

// Search resolves req into a Query and runs it against the current index.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	idx := s.Index()
	if idx == nil {
		return nil, sigilerr.New(sigilerr.CodeIndexNotLoaded, "index has not been loaded")
	}

	k := req.K
	if k == 0 {
		k = s.topK
	}

	tags, vec, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	// Filtering can leave nothing to score by. That degrades to an empty
	// tag query, which ranks every row 0 in snapshot order.
	var q index.Query = index.TagQuery{}
	if len(tags) > 0 || len(vec) > 0 {
		if q, err = index.NewQuery(tags, vec); err != nil {
			return nil, err
		}
	}
	results, err := idx.Search(q, k)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search", "mode", q.Mode(), "tags", len(tags), "k", k, "results", len(results))
	if tags == nil {
		tags = []string{}
	}
	return &Response{Mode: q.Mode(), Tags: tags, Results: results}, nil
}

// resolve derives query tags and vector: tags from the example image plus
// the vocabulary-filtered request tags, and the mean of the image and text
// embeddings.
func (s *Service) resolve(ctx context.Context, req Request) ([]string, []float32, error) {
	if len(req.Image) == 0 && req.Text == "" && len(req.Tags) == 0 {
		return nil, nil, sigilerr.New(sigilerr.CodeSearchRequestInvalid, "query needs an image, text, or tags")
	}

	var tags []string
	var imageVec, textVec []float32

	if len(req.Image) > 0 {
		dec, err := ingest.Decode(req.Image, "query", 0)
		if err != nil {
			// %v, not %w: the request code must stay the innermost one.
			return nil, nil, sigilerr.Errorf(sigilerr.CodeSearchRequestInvalid, "decoding query image: %v", err)
		}
		imgs := []extract.Image{dec.Image}

		if s.tagger == nil && s.embedder == nil {
			return nil, nil, sigilerr.New(sigilerr.CodeExtractNotConfigured, "query by image needs a tagger or an embedder")
		}
		if s.tagger != nil {
			got, err := s.tagger.ExtractTags(ctx, imgs)
			if err != nil {
				return nil, nil, err
			}
			if err := extract.CheckCount(s.tagger.Name(), 1, len(got)); err != nil {
				return nil, nil, err
			}
			tags = append(tags, got[0]...)
		}
		if s.embedder != nil {
			got, err := s.embedder.EmbedImages(ctx, imgs)
			if err != nil {
				return nil, nil, err
			}
			if err := extract.CheckCount(s.embedder.Name(), 1, len(got)); err != nil {
				return nil, nil, err
			}
			imageVec = got[0]
		}
	}

	if req.Text != "" {
		if s.embedder == nil {
			return nil, nil, sigilerr.New(sigilerr.CodeExtractNotConfigured, "query by text needs an embedder")
		}
		v, err := s.embedder.EmbedText(ctx, req.Text)
		if err != nil {
			return nil, nil, err
		}
		textVec = v
	}

	if len(req.Tags) > 0 {
		filtered := s.vocab.Filter(req.Tags)
		if dropped := len(extract.NormalizeTags(req.Tags, 0)) - len(filtered); dropped > 0 {
			s.logger.Debug("query tags outside vocabulary dropped", "dropped", dropped)
		}
		tags = append(tags, filtered...)
	}

	return extract.NormalizeTags(tags, 0), extract.Mean(imageVec, textVec), nil
}

// Image returns the original bytes for hash.
func (s *Service) Image(ctx context.Context, hash string) (store.Blob, error) {
	h, err := store.ParseContentHash(hash)
	if err != nil {
		return store.Blob{}, err
	}
	blob, ok, err := s.store.RetrieveImage(ctx, h)
	if err != nil {
		return store.Blob{}, err
	}
	if !ok {
		return store.Blob{}, sigilerr.New(sigilerr.CodeStoreImageGetNotFound, "image not found", sigilerr.FieldHash(hash))
	}
	return blob, nil
}

// Preview returns the stored preview for hash, falling back to the
// original bytes when the image was stored without one.
func (s *Service) Preview(ctx context.Context, hash string) (store.Blob, error) {
	h, err := store.ParseContentHash(hash)
	if err != nil {
		return store.Blob{}, err
	}
	blob, ok, err := s.store.RetrievePreview(ctx, h)
	if err != nil {
		return store.Blob{}, err
	}
	if !ok {
		return store.Blob{}, sigilerr.New(sigilerr.CodeStoreImageGetNotFound, "image not found", sigilerr.FieldHash(hash))
	}
	if blob.Data != nil {
		return blob, nil
	}
	return s.Image(ctx, hash)
}

// Tags lists the tags a query may use: the vocabulary when one is
// configured, otherwise every tag present in the loaded index.
func (s *Service) Tags() []string {
	if !s.vocab.Open() {
		return s.vocab.Tags()
	}
	if idx := s.Index(); idx != nil {
		return idx.Tags()
	}
	return []string{}
}

// Stats reports store counts and index state.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	out := Stats{Store: st}
	if l := s.current.Load(); l != nil {
		out.IndexLoaded = true
		out.IndexRows = l.idx.Len()
		out.IndexDim = l.idx.Dim()
		out.LoadedAt = l.at
	}
	return out, nil
}

// Health snapshots the extractors that track their own health.
func (s *Service) Health() map[string]health.Metrics {
	var components []any
	if s.tagger != nil {
		components = append(components, s.tagger)
	}
	if s.embedder != nil {
		components = append(components, s.embedder)
	}
	return health.Collect(components...)
}
