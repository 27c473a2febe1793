// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/glimpse/internal/config"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "glimpse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".glimpse"), cfg.DataDir)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 16, cfg.Ingest.BatchSize)
	assert.Equal(t, 256, cfg.Ingest.PreviewHeight)
	assert.Contains(t, cfg.Ingest.Extensions, ".webp")
	assert.Equal(t, "none", cfg.Extractors.Tagger.Provider)
	assert.Equal(t, "none", cfg.Extractors.Embedder.Provider)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
	assert.False(t, cfg.Server.AllowIngest)
	assert.Equal(t, int64(64<<20), cfg.Server.MaxUploadBytes)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
data_dir: /srv/glimpse
extractors:
  tagger:
    provider: anthropic
    api_key: keyring://glimpse/anthropic-api-key
    max_tags: 12
  embedder:
    provider: openai
    base_url: http://127.0.0.1:8000/v1
    dimensions: 512
search:
  top_k: 25
server:
  listen: "0.0.0.0:9999"
  cors_origins: [https://photos.example.com]
  rate_limit:
    requests_per_second: 5
    burst: 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/glimpse", cfg.DataDir)
	assert.Equal(t, "anthropic", cfg.Extractors.Tagger.Provider)
	assert.Equal(t, "keyring://glimpse/anthropic-api-key", cfg.Extractors.Tagger.APIKey, "keyring URIs are resolved by the caller")
	assert.Equal(t, 12, cfg.Extractors.Tagger.MaxTags)
	assert.Equal(t, 512, cfg.Extractors.Embedder.Dimensions)
	assert.Equal(t, 25, cfg.Search.TopK)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, []string{"https://photos.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5.0, cfg.Server.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.Server.RateLimit.Burst)
	assert.Equal(t, 16, cfg.Ingest.BatchSize, "unset keys keep defaults")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GLIMPSE_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("GLIMPSE_INGEST_BATCH_SIZE", "4")
	t.Setenv("GLIMPSE_SERVER_ALLOW_INGEST", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 4, cfg.Ingest.BatchSize)
	assert.True(t, cfg.Server.AllowIngest)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigLoadReadFailure))
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := config.Load(writeConfig(t, "search: [top_k\n"))
		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigParseInvalidFormat))
	})

	t.Run("validation runs at load time", func(t *testing.T) {
		_, err := config.Load(writeConfig(t, "extractors:\n  tagger:\n    provider: clippy\n"))
		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigValidateInvalidValue))
		assert.Contains(t, err.Error(), "extractors.tagger.provider")
	})
}

func TestFromViper_FlagPrecedence(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	config.SetupEnv(v)
	t.Setenv("GLIMPSE_SEARCH_TOP_K", "7")
	v.Set("search.top_k", 3)

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Search.TopK, "explicit Set wins over env")
}

// validConfig returns a config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		DataDir: "/var/lib/glimpse",
		Storage: config.StorageConfig{Backend: "sqlite"},
		Ingest: config.IngestConfig{
			BatchSize:     16,
			PreviewHeight: 256,
			Extensions:    []string{".jpg", "png"},
		},
		Extractors: config.ExtractorsConfig{
			Tagger:   config.TaggerConfig{Provider: "google", MaxTags: 20, Concurrency: 2},
			Embedder: config.EmbedderConfig{Provider: "openai", Dimensions: 512},
		},
		Search: config.SearchConfig{TopK: 10},
		Server: config.ServerConfig{Listen: "127.0.0.1:18790"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		key    string
	}{
		{"empty data dir", func(c *config.Config) { c.DataDir = "" }, "data_dir"},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"zero batch", func(c *config.Config) { c.Ingest.BatchSize = 0 }, "ingest.batch_size"},
		{"zero preview height", func(c *config.Config) { c.Ingest.PreviewHeight = 0 }, "ingest.preview_height"},
		{"bare dot extension", func(c *config.Config) { c.Ingest.Extensions = []string{"."} }, "ingest.extensions[0]"},
		{"path as extension", func(c *config.Config) { c.Ingest.Extensions = []string{"a/b"} }, "ingest.extensions[0]"},
		{"unknown tagger", func(c *config.Config) { c.Extractors.Tagger.Provider = "openai" }, "extractors.tagger.provider"},
		{"negative max tags", func(c *config.Config) { c.Extractors.Tagger.MaxTags = -1 }, "extractors.tagger.max_tags"},
		{"negative concurrency", func(c *config.Config) { c.Extractors.Tagger.Concurrency = -1 }, "extractors.tagger.concurrency"},
		{"unknown embedder", func(c *config.Config) { c.Extractors.Embedder.Provider = "anthropic" }, "extractors.embedder.provider"},
		{"negative dimensions", func(c *config.Config) { c.Extractors.Embedder.Dimensions = -4 }, "extractors.embedder.dimensions"},
		{"zero top k", func(c *config.Config) { c.Search.TopK = 0 }, "search.top_k"},
		{"empty listen", func(c *config.Config) { c.Server.Listen = "" }, "server.listen"},
		{"listen without port", func(c *config.Config) { c.Server.Listen = "127.0.0.1" }, "server.listen"},
		{"port zero", func(c *config.Config) { c.Server.Listen = "127.0.0.1:0" }, "server.listen"},
		{"port too high", func(c *config.Config) { c.Server.Listen = "127.0.0.1:70000" }, "server.listen"},
		{"port not a number", func(c *config.Config) { c.Server.Listen = "127.0.0.1:http" }, "server.listen"},
		{"wildcard cors", func(c *config.Config) { c.Server.CORSOrigins = []string{"*"} }, "server.cors_origins"},
		{"negative upload", func(c *config.Config) { c.Server.MaxUploadBytes = -1 }, "server.max_upload_bytes"},
		{"negative rate", func(c *config.Config) { c.Server.RateLimit.RequestsPerSecond = -1 }, "server.rate_limit.requests_per_second"},
		{"rate without burst", func(c *config.Config) { c.Server.RateLimit.RequestsPerSecond = 2 }, "server.rate_limit.burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.key)
			assert.True(t, sigilerr.HasCode(errs[0], sigilerr.CodeConfigValidateInvalidValue))
		})
	}
}

func TestValidate_CollectsEveryError(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = ""
	cfg.Search.TopK = -1
	cfg.Server.Listen = ""

	errs := cfg.Validate()
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Error(), "storage.backend")
	assert.Contains(t, errs[1].Error(), "search.top_k")
	assert.Contains(t, errs[2].Error(), "server.listen")
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := config.ExpandHome("~/.glimpse")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".glimpse"), got)

	got, err = config.ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = config.ExpandHome("~other/x")
	require.NoError(t, err)
	assert.Equal(t, "~other/x", got, "only the current user's home is expanded")
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "glimpse.yaml")

	require.NoError(t, config.WriteDefault(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.ErrorIs(t, config.WriteDefault(path), os.ErrExist)

	// The embedded template is itself a valid configuration.
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Extractors.Tagger.Provider)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
}
