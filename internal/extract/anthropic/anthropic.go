// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	"context"
	"encoding/base64"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigil-dev/glimpse/internal/extract"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/sigil-dev/glimpse/pkg/health"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5"

// acceptedTypes are the image media types the Messages API takes.
var acceptedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Config holds Anthropic tagger configuration.
type Config struct {
	APIKey      string
	BaseURL     string // optional, useful for testing against a mock server
	Model       string
	MaxTags     int
	Concurrency int
	MaxRetries  int
}

// Tagger implements extract.Tagger with the Anthropic Messages API, one
// vision request per image.
type Tagger struct {
	client anthropicsdk.Client
	config Config
	health *extract.HealthTracker
}

var (
	_ extract.Tagger       = (*Tagger)(nil)
	_ extract.Availability = (*Tagger)(nil)
)

// New creates a new Anthropic tagger. Returns an error if the API key is missing.
func New(cfg Config) (*Tagger, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeExtractRequestInvalid, "anthropic: missing api_key in config",
			sigilerr.FieldProvider(extract.ProviderAnthropic))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = extract.DefaultMaxTags
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Tagger{
		client: anthropicsdk.NewClient(opts...),
		config: cfg,
		health: extract.MustHealthTracker(),
	}, nil
}

func (t *Tagger) Name() string { return extract.ProviderAnthropic }

func (t *Tagger) Available(_ context.Context) bool {
	return t.health.IsHealthy()
}

// HealthMetrics reports the upstream health of the tagger.
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

	params := buildParams(t.config, mime, data)
	msg, err := t.client.Messages.New(ctx, params)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeExtractUpstreamFailure, "anthropic: tagging image")
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return extract.ParseTags(reply.String(), t.config.MaxTags), nil
}

// buildParams assembles a single-turn vision request.
func buildParams(cfg Config, mime string, data []byte) anthropicsdk.MessageNewParams {
	return anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(cfg.Model),
		MaxTokens: 256,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(
				anthropicsdk.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(data)),
				anthropicsdk.NewTextBlock(extract.TagPrompt(cfg.MaxTags)),
			),
		},
	}
}
