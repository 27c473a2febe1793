// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/glimpse/internal/index"
	"github.com/sigil-dev/glimpse/internal/ingest"
	"github.com/sigil-dev/glimpse/internal/search"
	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/sigil-dev/glimpse/pkg/health"
)

// Searcher answers queries and resolves hashes. *search.Service implements it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Image(ctx context.Context, hash string) (store.Blob, error)
	Preview(ctx context.Context, hash string) (store.Blob, error)
	Tags() []string
	Stats(ctx context.Context) (search.Stats, error)
	Health() map[string]health.Metrics
	Reload(ctx context.Context) (*index.Index, error)
}

// Ingester processes one batch of uploaded images. *ingest.Pipeline
// implements it.
type Ingester interface {
	Process(ctx context.Context, items []ingest.Item) (*ingest.BatchReport, error)
}

// Services holds the dependencies route handlers call. Handlers see only
// these interfaces so tests can substitute fakes.
type Services struct {
	searcher Searcher
	ingester Ingester // optional; nil disables uploads
}

// NewServices validates and bundles handler dependencies. ingester may be
// nil.
func NewServices(searcher Searcher, ingester Ingester) (*Services, error) {
	if searcher == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "search service is required")
	}
	return &Services{searcher: searcher, ingester: ingester}, nil
}

// Searcher returns the search service.
func (s *Services) Searcher() Searcher { return s.searcher }

// Ingester returns the ingest pipeline, or nil when uploads are disabled.
func (s *Services) Ingester() Ingester { return s.ingester }
