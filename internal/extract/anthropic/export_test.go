// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import anthropicsdk "github.com/anthropics/anthropic-sdk-go"

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(cfg Config, mime string, data []byte) anthropicsdk.MessageNewParams {
	return buildParams(cfg, mime, data)
}
