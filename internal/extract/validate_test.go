// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extract_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sigil-dev/glimpse/internal/extract"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey_Success(t *testing.T) {
	tests := []struct {
		provider string
		path     string
		check    func(t *testing.T, r *http.Request)
	}{
		{
			provider: extract.ProviderAnthropic,
			path:     "/v1/models",
			check: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
				assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
			},
		},
		{
			provider: extract.ProviderOpenAI,
			path:     "/models",
			check: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			},
		},
		{
			provider: extract.ProviderGoogle,
			path:     "/v1beta/models",
			check: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.path, r.URL.Path)
				tt.check(t, r)
				_, _ = w.Write([]byte(`{"data":[]}`))
			}))
			defer srv.Close()

			err := extract.ValidateKey(context.Background(), srv.Client(), tt.provider, "test-key", srv.URL)
			require.NoError(t, err)
		})
	}
}

func TestValidateKey_Failures(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		check      func(error) bool
	}{
		{name: "401 rejected", statusCode: http.StatusUnauthorized, check: sigilerr.IsInvalidInput},
		{name: "403 rejected", statusCode: http.StatusForbidden, check: sigilerr.IsInvalidInput},
		{name: "500 upstream", statusCode: http.StatusInternalServerError, check: sigilerr.IsUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			err := extract.ValidateKey(context.Background(), srv.Client(), extract.ProviderOpenAI, "bad", srv.URL)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got code %s", sigilerr.CodeOf(err))
		})
	}
}

func TestValidateKey_UnknownProvider(t *testing.T) {
	err := extract.ValidateKey(context.Background(), http.DefaultClient, "unknown", "key", "")
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err))
}
