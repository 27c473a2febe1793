// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import openaisdk "github.com/openai/openai-go"

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(cfg Config, inputs []string) openaisdk.EmbeddingNewParams {
	return buildParams(cfg, inputs)
}

// DataURI exposes dataURI for white-box testing.
var DataURI = dataURI
