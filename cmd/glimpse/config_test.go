// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

func TestConfigShow_RedactsLiteralKeys(t *testing.T) {
	env := newTestEnv(t, `
extractors:
  tagger:
    provider: anthropic
    api_key: sk-ant-literal
  embedder:
    provider: openai
    api_key: keyring://glimpse/openai-api-key
`)

	out, err := env.run(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-ant-literal")
	assert.Contains(t, out, "api_key: <redacted>")
	assert.Contains(t, out, "api_key: keyring://glimpse/openai-api-key")
	assert.Contains(t, out, "listen: 127.0.0.1:18790")
}

func TestConfigPath(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := env.run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, env.configPath, strings.TrimSpace(out))
}

func TestConfigInit(t *testing.T) {
	env := newTestEnv(t, "")
	target := filepath.Join(t.TempDir(), "fresh.yaml")

	out, err := env.run(t, "config", "init", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+target)
	assert.FileExists(t, target)

	_, err = env.run(t, "config", "init", target)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigAlreadyExists))
	assert.Contains(t, err.Error(), "already exists")
}
