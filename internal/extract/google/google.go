// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/sigil-dev/glimpse/internal/extract"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/sigil-dev/glimpse/pkg/health"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

var acceptedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

// Config holds Google tagger configuration.
type Config struct {
	APIKey      string
	BaseURL     string // optional, useful for testing against a mock server
	Model       string
	MaxTags     int
	Concurrency int
}

// Tagger implements extract.Tagger with the Gemini API.
type Tagger struct {
	client *genai.Client
	config Config
	health *extract.HealthTracker
}

var (
	_ extract.Tagger       = (*Tagger)(nil)
	_ extract.Availability = (*Tagger)(nil)
)

// New creates a new Google tagger. Returns an error if the API key is missing.
func New(cfg Config) (*Tagger, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeExtractRequestInvalid, "google: missing api_key in config",
			sigilerr.FieldProvider(extract.ProviderGoogle))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = extract.DefaultMaxTags
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeExtractUpstreamFailure, "google: creating client")
	}

	return &Tagger{
		client: client,
		config: cfg,
		health: extract.MustHealthTracker(),
	}, nil
}

func (t *Tagger) Name() string { return extract.ProviderGoogle }

func (t *Tagger) Available(_ context.Context) bool {
	return t.health.IsHealthy()
}

func (t *Tagger) HealthMetrics() health.Metrics { return t.health.Metrics() }

// ExtractTags requests tags for every image, bounded by Config.Concurrency.
func (t *Tagger) ExtractTags(ctx context.Context, images []extract.Image) ([][]string, error) {
	out, err := extract.ForEach(ctx, images, t.config.Concurrency, t.tagOne)
	return out, t.health.Record(err)
}

func (t *Tagger) tagOne(ctx context.Context, img extract.Image) ([]string, error) {
	data, mime, err := img.Upload(acceptedTypes...)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.config.Model, buildContents(t.config, mime, data), buildConfig())
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeExtractUpstreamFailure, "google: tagging image")
	}
	return extract.ParseTags(resp.Text(), t.config.MaxTags), nil
}

func buildContents(cfg Config, mime string, data []byte) []*genai.Content {
	return []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mime, Data: data}},
				{Text: extract.TagPrompt(cfg.MaxTags)},
			},
		},
	}
}

func buildConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: 256,
	}
}
