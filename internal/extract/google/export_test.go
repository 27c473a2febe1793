// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import "google.golang.org/genai"

// BuildContents exposes buildContents for white-box testing.
var BuildContents = func(cfg Config, mime string, data []byte) []*genai.Content {
	return buildContents(cfg, mime, data)
}
