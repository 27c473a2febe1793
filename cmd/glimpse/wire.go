// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/sigil-dev/glimpse/internal/config"
	"github.com/sigil-dev/glimpse/internal/extract"
	"github.com/sigil-dev/glimpse/internal/extract/anthropic"
	"github.com/sigil-dev/glimpse/internal/extract/google"
	"github.com/sigil-dev/glimpse/internal/extract/openai"
	"github.com/sigil-dev/glimpse/internal/ingest"
	"github.com/sigil-dev/glimpse/internal/search"
	"github.com/sigil-dev/glimpse/internal/secrets"
	"github.com/sigil-dev/glimpse/internal/server"
	"github.com/sigil-dev/glimpse/internal/store"
	_ "github.com/sigil-dev/glimpse/internal/store/sqlite" // register sqlite backend
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// App holds the wired components behind every command.
type App struct {
	Config   *config.Config
	Store    store.ContentStore
	Tagger   extract.Tagger
	Embedder extract.Embedder
	Pipeline *ingest.Pipeline
	Search   *search.Service
	Logger   *slog.Logger
}

type wireOptions struct {
	readOnly       bool
	skipExtractors bool
}

// WireOption adjusts Wire.
type WireOption func(*wireOptions)

// ReadOnly opens the store without write access.
func ReadOnly() WireOption {
	return func(o *wireOptions) { o.readOnly = true }
}

// WithoutExtractors skips building model clients; commands that only read
// stored bytes do not need API keys.
func WithoutExtractors() WireOption {
	return func(o *wireOptions) { o.skipExtractors = true }
}

// Wire opens the store and builds the extractors, pipeline and search
// service described by cfg. keyring:// API keys are resolved through ss.
func Wire(cfg *config.Config, logger *slog.Logger, ss secrets.Store, opts ...WireOption) (*App, error) {
	var o wireOptions
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg, Logger: logger}

	if !o.skipExtractors {
		if err := secrets.ResolveAll(ss, map[string]*string{
			"extractors.tagger.api_key":   &cfg.Extractors.Tagger.APIKey,
			"extractors.embedder.api_key": &cfg.Extractors.Embedder.APIKey,
		}); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "resolving api keys")
		}

		var err error
		if app.Tagger, err = buildTagger(cfg.Extractors.Tagger); err != nil {
			return nil, err
		}
		if app.Embedder, err = buildEmbedder(cfg.Extractors.Embedder); err != nil {
			return nil, err
		}
	}

	var vocab *extract.Vocabulary
	if cfg.Search.VocabularyPath != "" {
		path, err := config.ExpandHome(cfg.Search.VocabularyPath)
		if err != nil {
			return nil, err
		}
		if vocab, err = extract.LoadVocabulary(path); err != nil {
			return nil, err
		}
		logger.Debug("loaded tag vocabulary", "path", path, "tags", vocab.Len())
	}

	readOnly := o.readOnly || cfg.Storage.ReadOnly
	if !readOnly {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating data directory: %v", err)
		}
	}
	cs, err := store.Open(&store.StorageConfig{
		Backend:  cfg.Storage.Backend,
		Path:     cfg.Storage.Path,
		ReadOnly: readOnly,
	}, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	app.Store = cs

	app.Pipeline = ingest.New(ingest.Config{
		BatchSize:     cfg.Ingest.BatchSize,
		PreviewHeight: cfg.Ingest.PreviewHeight,
		SkipComplete:  cfg.Ingest.SkipComplete,
		Logger:        logger,
	}, cs, app.Tagger, app.Embedder)

	app.Search = search.New(search.Config{
		TopK:       cfg.Search.TopK,
		Vocabulary: vocab,
		Logger:     logger,
	}, cs, app.Tagger, app.Embedder)

	return app, nil
}

// Server builds the HTTP server for the app.
func (a *App) Server() (*server.Server, error) {
	var ingester server.Ingester
	if a.Config.Server.AllowIngest {
		ingester = a.Pipeline
	}
	svc, err := server.NewServices(a.Search, ingester)
	if err != nil {
		return nil, err
	}
	return server.New(server.Config{
		ListenAddr:     a.Config.Server.Listen,
		CORSOrigins:    a.Config.Server.CORSOrigins,
		AllowIngest:    a.Config.Server.AllowIngest,
		MaxUploadBytes: a.Config.Server.MaxUploadBytes,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: a.Config.Server.RateLimit.RequestsPerSecond,
			Burst:             a.Config.Server.RateLimit.Burst,
		},
		Logger: a.Logger,
	}, svc)
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// buildTagger returns nil when the provider is "none".
func buildTagger(cfg config.TaggerConfig) (extract.Tagger, error) {
	switch cfg.Provider {
	case extract.ProviderAnthropic:
		t, err := anthropic.New(anthropic.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTags:     cfg.MaxTags,
			Concurrency: cfg.Concurrency,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case extract.ProviderGoogle:
		t, err := google.New(google.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTags:     cfg.MaxTags,
			Concurrency: cfg.Concurrency,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case extract.ProviderNone, "":
		return nil, nil
	}
	return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "unknown tagger provider %q", cfg.Provider)
}

// buildEmbedder returns nil when the provider is "none".
func buildEmbedder(cfg config.EmbedderConfig) (extract.Embedder, error) {
	switch cfg.Provider {
	case extract.ProviderOpenAI:
		e, err := openai.New(openai.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case extract.ProviderNone, "":
		return nil, nil
	}
	return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "unknown embedder provider %q", cfg.Provider)
}

// requireExtractors fails unless both a tagger and an embedder are wired.
func (a *App) requireExtractors(op string) error {
	var missing []error
	if a.Tagger == nil {
		missing = append(missing, errors.New("extractors.tagger.provider is none"))
	}
	if a.Embedder == nil {
		missing = append(missing, errors.New("extractors.embedder.provider is none"))
	}
	if len(missing) == 0 {
		return nil
	}
	return sigilerr.Errorf(sigilerr.CodeExtractNotConfigured, "%s needs a tagger and an embedder: %v", op, errors.Join(missing...))
}
