// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/glimpse/internal/config"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: filepath.Join(t.TempDir(), "data"),
		Storage: config.StorageConfig{Backend: "sqlite"},
		Ingest:  config.IngestConfig{BatchSize: 4, PreviewHeight: 64},
		Extractors: config.ExtractorsConfig{
			Tagger:   config.TaggerConfig{Provider: "none"},
			Embedder: config.EmbedderConfig{Provider: "none"},
		},
		Search: config.SearchConfig{TopK: 5},
		Server: config.ServerConfig{Listen: "127.0.0.1:18790"},
	}
}

func TestWire_NoExtractors(t *testing.T) {
	cfg := testConfig(t)
	app, err := Wire(cfg, slog.Default(), newMemSecrets())
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.DirExists(t, cfg.DataDir)
	assert.Nil(t, app.Tagger, "provider none wires no tagger")
	assert.Nil(t, app.Embedder)
	assert.NotNil(t, app.Pipeline)
	assert.NotNil(t, app.Search)

	err = app.requireExtractors("backfill")
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeExtractNotConfigured))
}

func TestWire_ResolvesKeyringKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extractors.Tagger = config.TaggerConfig{Provider: "anthropic", APIKey: "keyring://glimpse/anthropic-api-key"}
	cfg.Extractors.Embedder = config.EmbedderConfig{Provider: "openai", APIKey: "sk-literal", BaseURL: "http://127.0.0.1:1/v1"}

	app, err := Wire(cfg, slog.Default(), newMemSecrets("anthropic-api-key", "sk-ant-resolved"))
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.Equal(t, "sk-ant-resolved", cfg.Extractors.Tagger.APIKey)
	assert.Equal(t, "sk-literal", cfg.Extractors.Embedder.APIKey)
	require.NotNil(t, app.Tagger)
	require.NotNil(t, app.Embedder)
	assert.NoError(t, app.requireExtractors("backfill"))
}

func TestWire_Errors(t *testing.T) {
	t.Run("unresolvable secret", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Extractors.Tagger = config.TaggerConfig{Provider: "google", APIKey: "keyring://glimpse/missing"}
		_, err := Wire(cfg, slog.Default(), newMemSecrets())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extractors.tagger.api_key")
	})

	t.Run("provider without key", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Extractors.Embedder.Provider = "openai"
		_, err := Wire(cfg, slog.Default(), newMemSecrets())
		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeExtractRequestInvalid))
	})

	t.Run("read-only without a database", func(t *testing.T) {
		cfg := testConfig(t)
		_, err := Wire(cfg, slog.Default(), newMemSecrets(), ReadOnly())
		require.Error(t, err)
		assert.NoDirExists(t, cfg.DataDir)
	})

	t.Run("extractors skipped", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Extractors.Tagger = config.TaggerConfig{Provider: "anthropic", APIKey: "keyring://glimpse/missing"}
		app, err := Wire(cfg, slog.Default(), newMemSecrets(), WithoutExtractors())
		require.NoError(t, err, "keys are not resolved when no extractor is built")
		_ = app.Close()
	})
}

func TestApp_Server(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.CORSOrigins = []string{"https://photos.example.com"}
	app, err := Wire(cfg, slog.Default(), newMemSecrets())
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	srv, err := app.Server()
	require.NoError(t, err)
	assert.NotNil(t, srv.Handler())
	_ = srv.Close()
}
