// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GLIMPSE_SERVER_LISTEN.
const EnvPrefix = "GLIMPSE"

// Config is the top-level Glimpse configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir" yaml:"data_dir"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Ingest     IngestConfig     `mapstructure:"ingest" yaml:"ingest"`
	Extractors ExtractorsConfig `mapstructure:"extractors" yaml:"extractors"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

// StorageConfig selects the storage backend and database location.
type StorageConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Path     string `mapstructure:"path" yaml:"path"`
	ReadOnly bool   `mapstructure:"read_only" yaml:"read_only"`
}

// IngestConfig controls batching and preview generation.
type IngestConfig struct {
	BatchSize     int      `mapstructure:"batch_size" yaml:"batch_size"`
	PreviewHeight int      `mapstructure:"preview_height" yaml:"preview_height"`
	SkipComplete  bool     `mapstructure:"skip_complete" yaml:"skip_complete"`
	Extensions    []string `mapstructure:"extensions" yaml:"extensions"`
}

// ExtractorsConfig configures the tagging and embedding models.
type ExtractorsConfig struct {
	Tagger   TaggerConfig   `mapstructure:"tagger" yaml:"tagger"`
	Embedder EmbedderConfig `mapstructure:"embedder" yaml:"embedder"`
}

// TaggerConfig selects the vision model that produces tags.
type TaggerConfig struct {
	Provider    string `mapstructure:"provider" yaml:"provider"`
	Model       string `mapstructure:"model" yaml:"model"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	MaxTags     int    `mapstructure:"max_tags" yaml:"max_tags"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// EmbedderConfig selects the joint image/text embedding model.
type EmbedderConfig struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
}

// SearchConfig controls query defaults.
type SearchConfig struct {
	TopK           int    `mapstructure:"top_k" yaml:"top_k"`
	VocabularyPath string `mapstructure:"vocabulary_path" yaml:"vocabulary_path"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen         string          `mapstructure:"listen" yaml:"listen"`
	CORSOrigins    []string        `mapstructure:"cors_origins" yaml:"cors_origins"`
	AllowIngest    bool            `mapstructure:"allow_ingest" yaml:"allow_ingest"`
	MaxUploadBytes int64           `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig is the per-IP request limit. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

var (
	taggerProviders   = []string{"anthropic", "google", "none"}
	embedderProviders = []string{"openai", "none"}
	storageBackends   = []string{"sqlite"}
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "~/.glimpse")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.read_only", false)

	v.SetDefault("ingest.batch_size", 16)
	v.SetDefault("ingest.preview_height", 256)
	v.SetDefault("ingest.skip_complete", false)
	v.SetDefault("ingest.extensions", []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"})

	v.SetDefault("extractors.tagger.provider", "none")
	v.SetDefault("extractors.tagger.max_tags", 20)
	v.SetDefault("extractors.tagger.concurrency", 4)
	v.SetDefault("extractors.embedder.provider", "none")

	v.SetDefault("search.top_k", 10)
	v.SetDefault("search.vocabulary_path", "")

	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.allow_ingest", false)
	v.SetDefault("server.max_upload_bytes", 64<<20)
	v.SetDefault("server.rate_limit.requests_per_second", 0)
	v.SetDefault("server.rate_limit.burst", 0)
}

// SetupEnv maps GLIMPSE_SECTION_KEY environment variables onto v.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path (or defaults only when path is empty)
// with GLIMPSE_ environment overrides, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "parsing config %s: %v", path, err)
			}
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %v", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %v", err)
	}

	dir, err := ExpandHome(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dir

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %v", errors.Join(errs...))
	}
	return &cfg, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "resolving home directory: %v", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate checks the configuration for logical errors.
// It returns every problem found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, invalid("data_dir must not be empty"))
	}
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateIngest()...)
	errs = append(errs, c.validateExtractors()...)
	errs = append(errs, c.validateSearch()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func (c *Config) validateStorage() []error {
	if !slices.Contains(storageBackends, c.Storage.Backend) {
		return []error{invalid("storage.backend must be one of %v, got %q", storageBackends, c.Storage.Backend)}
	}
	return nil
}

func (c *Config) validateIngest() []error {
	var errs []error

	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, invalid("ingest.batch_size must be greater than 0, got %d", c.Ingest.BatchSize))
	}
	if c.Ingest.PreviewHeight <= 0 {
		errs = append(errs, invalid("ingest.preview_height must be greater than 0, got %d", c.Ingest.PreviewHeight))
	}
	for i, ext := range c.Ingest.Extensions {
		if strings.TrimPrefix(ext, ".") == "" || strings.ContainsAny(ext, `/\`) {
			errs = append(errs, invalid("ingest.extensions[%d] is not a file extension: %q", i, ext))
		}
	}

	return errs
}

func (c *Config) validateExtractors() []error {
	var errs []error

	t := c.Extractors.Tagger
	if !slices.Contains(taggerProviders, t.Provider) {
		errs = append(errs, invalid("extractors.tagger.provider must be one of %v, got %q", taggerProviders, t.Provider))
	}
	if t.MaxTags < 0 {
		errs = append(errs, invalid("extractors.tagger.max_tags must not be negative, got %d", t.MaxTags))
	}
	if t.Concurrency < 0 {
		errs = append(errs, invalid("extractors.tagger.concurrency must not be negative, got %d", t.Concurrency))
	}

	e := c.Extractors.Embedder
	if !slices.Contains(embedderProviders, e.Provider) {
		errs = append(errs, invalid("extractors.embedder.provider must be one of %v, got %q", embedderProviders, e.Provider))
	}
	if e.Dimensions < 0 {
		errs = append(errs, invalid("extractors.embedder.dimensions must not be negative, got %d", e.Dimensions))
	}

	return errs
}

func (c *Config) validateSearch() []error {
	if c.Search.TopK <= 0 {
		return []error{invalid("search.top_k must be greater than 0, got %d", c.Search.TopK)}
	}
	return nil
}

func (c *Config) validateServer() []error {
	var errs []error

	s := c.Server
	if s.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %v", s.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil {
		errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
	}

	if slices.Contains(s.CORSOrigins, "*") {
		errs = append(errs, invalid("server.cors_origins must list origins explicitly; \"*\" is not allowed"))
	}
	if s.MaxUploadBytes < 0 {
		errs = append(errs, invalid("server.max_upload_bytes must not be negative, got %d", s.MaxUploadBytes))
	}
	if s.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative, got %g", s.RateLimit.RequestsPerSecond))
	}
	if s.RateLimit.RequestsPerSecond > 0 && s.RateLimit.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be greater than 0 when a rate is set, got %d", s.RateLimit.Burst))
	}

	return errs
}

func invalid(format string, args ...any) error {
	return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}
