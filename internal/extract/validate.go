// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extract

import (
	"context"
	"io"
	"net/http"
	"strings"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// Provider names accepted in configuration.
const (
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderNone      = "none"
)

// ValidateKey makes a lightweight call to the provider's model listing
// endpoint to confirm the API key is accepted. baseURL overrides the
// provider's public endpoint when non-empty.
func ValidateKey(ctx context.Context, client *http.Client, provider, key, baseURL string) error {
	var (
		url     string
		headers = map[string]string{}
	)

	switch provider {
	case ProviderAnthropic:
		url = withBase(baseURL, "https://api.anthropic.com") + "/v1/models"
		headers["x-api-key"] = key
		headers["anthropic-version"] = "2023-06-01"
	case ProviderOpenAI:
		url = withBase(baseURL, "https://api.openai.com/v1") + "/models"
		headers["Authorization"] = "Bearer " + key
	case ProviderGoogle:
		// The Generative Language API authenticates via query parameter.
		url = withBase(baseURL, "https://generativelanguage.googleapis.com") + "/v1beta/models?key=" + key
	default:
		return sigilerr.Errorf(sigilerr.CodeExtractRequestInvalid, "unknown provider: %s", provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeExtractUpstreamFailure, "building validation request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeExtractUpstreamFailure, "validating %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return sigilerr.New(sigilerr.CodeExtractRequestInvalid, "API key rejected",
			sigilerr.FieldProvider(provider), sigilerr.Field("status", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return sigilerr.New(sigilerr.CodeExtractUpstreamFailure, "key validation failed",
			sigilerr.FieldProvider(provider), sigilerr.Field("status", resp.StatusCode))
	}
	return nil
}

func withBase(baseURL, def string) string {
	if baseURL == "" {
		return def
	}
	return strings.TrimSuffix(baseURL, "/")
}
