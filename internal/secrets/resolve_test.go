// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets_test

import (
	"testing"

	"github.com/sigil-dev/glimpse/internal/secrets"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"valid", "keyring://glimpse/openai-api-key", "glimpse", "openai-api-key", false},
		{"slashes in key", "keyring://glimpse/path/to/key", "glimpse", "path/to/key", false},
		{"other scheme", "vault://secret/key", "", "", true},
		{"missing key", "keyring://glimpse/", "", "", true},
		{"missing service", "keyring:///key", "", "", true},
		{"scheme only", "keyring://", "", "", true},
		{"no slash", "keyring://glimpse", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, key, err := secrets.ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, svc)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestURI(t *testing.T) {
	uri := secrets.URI(secrets.Service, "anthropic-api-key")
	assert.Equal(t, "keyring://glimpse/anthropic-api-key", uri)
	assert.True(t, secrets.IsURI(uri))
	assert.False(t, secrets.IsURI("sk-literal"))
}

func TestResolve(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("test-resolve", "key", "resolved-secret"))

	val, err := secrets.Resolve(ks, "keyring://test-resolve/key")
	require.NoError(t, err)
	assert.Equal(t, "resolved-secret", val)

	val, err = secrets.Resolve(ks, "sk-literal")
	require.NoError(t, err)
	assert.Equal(t, "sk-literal", val)

	_, err = secrets.Resolve(ks, "keyring://test-resolve/missing")
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretNotFound))
	assert.Contains(t, err.Error(), "keyring://test-resolve/missing")

	_, err = secrets.Resolve(ks, "keyring://bad")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretInvalidInput))
}

func TestResolveAll(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("test-resolve-all", "anthropic", "sk-ant"))

	tagger := "keyring://test-resolve-all/anthropic"
	embedder := "keyring://test-resolve-all/missing"
	literal := "sk-literal"

	err := secrets.ResolveAll(ks, map[string]*string{
		"extractors.tagger.api_key":   &tagger,
		"extractors.embedder.api_key": &embedder,
		"other":                       &literal,
		"unset":                       nil,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extractors.embedder.api_key")

	assert.Equal(t, "sk-ant", tagger, "resolvable fields are resolved despite other failures")
	assert.Equal(t, "keyring://test-resolve-all/missing", embedder, "failed fields keep their reference")
	assert.Equal(t, "sk-literal", literal)
}
