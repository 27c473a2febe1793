// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"cmp"
	"context"
	"encoding/base64"
	"slices"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sigil-dev/glimpse/internal/extract"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/sigil-dev/glimpse/pkg/health"
)

// DefaultModel is the CLIP model name served by common OpenAI-compatible
// embedding servers.
const DefaultModel = "clip-vit-b-32"

var acceptedTypes = []string{"image/jpeg", "image/png"}

// Config holds embedder configuration.
type Config struct {
	APIKey     string
	BaseURL    string // OpenAI-compatible endpoint serving a joint image/text model
	Model      string
	Dimensions int // 0 leaves the model's native width
	MaxRetries int
}

// Embedder implements extract.Embedder against the OpenAI embeddings API.
// Images are sent as base64 data URIs in the string input, which
// CLIP-serving OpenAI-compatible servers accept; text is sent verbatim.
// Every returned vector is L2-normalised.
type Embedder struct {
	client openaisdk.Client
	config Config
	health *extract.HealthTracker
}

var (
	_ extract.Embedder     = (*Embedder)(nil)
	_ extract.Availability = (*Embedder)(nil)
)

// New creates a new embedder. Returns an error if the API key is missing.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeExtractRequestInvalid, "openai: missing api_key in config",
			sigilerr.FieldProvider(extract.ProviderOpenAI))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Embedder{
		client: openaisdk.NewClient(opts...),
		config: cfg,
		health: extract.MustHealthTracker(),
	}, nil
}

func (e *Embedder) Name() string { return extract.ProviderOpenAI }

func (e *Embedder) Available(_ context.Context) bool {
	return e.health.IsHealthy()
}

func (e *Embedder) HealthMetrics() health.Metrics { return e.health.Metrics() }

// EmbedImages embeds all images in one request.
func (e *Embedder) EmbedImages(ctx context.Context, images []extract.Image) ([][]float32, error) {
	if len(images) == 0 {
		return [][]float32{}, nil
	}
	inputs := make([]string, len(images))
	for i, img := range images {
		data, mime, err := img.Upload(acceptedTypes...)
		if err != nil {
			return nil, err
		}
		inputs[i] = dataURI(mime, data)
	}
	out, err := e.embed(ctx, inputs)
	return out, e.health.Record(err)
}

// EmbedText embeds a free-text query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, sigilerr.New(sigilerr.CodeExtractRequestInvalid, "openai: text is empty")
	}
	out, err := e.embed(ctx, []string{text})
	if err = e.health.Record(err); err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *Embedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, buildParams(e.config, inputs))
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeExtractUpstreamFailure, "openai: creating embeddings")
	}
	if err := extract.CheckCount(extract.ProviderOpenAI, len(inputs), len(resp.Data)); err != nil {
		return nil, err
	}

	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openaisdk.Embedding) int { return cmp.Compare(a.Index, b.Index) })

	out := make([][]float32, len(data))
	width := -1
	for i, d := range data {
		vec := extract.Normalize(extract.FromFloat64(d.Embedding))
		if len(vec) == 0 || (width >= 0 && len(vec) != width) {
			return nil, sigilerr.New(sigilerr.CodeExtractResponseInvalid, "openai: embeddings have inconsistent widths",
				sigilerr.Field("index", i), sigilerr.Field("width", len(vec)))
		}
		width = len(vec)
		out[i] = vec
	}
	return out, nil
}

func buildParams(cfg Config, inputs []string) openaisdk.EmbeddingNewParams {
	params := openaisdk.EmbeddingNewParams{
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model:          openaisdk.EmbeddingModel(cfg.Model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	if cfg.Dimensions > 0 {
		params.Dimensions = openaisdk.Int(int64(cfg.Dimensions))
	}
	return params
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
