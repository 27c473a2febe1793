// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultMaxTags bounds the tags kept per image.
const DefaultMaxTags = 24

// TagPrompt is the instruction sent to vision models alongside each image.
func TagPrompt(maxTags int) string {
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	return fmt.Sprintf(
		"List up to %d short lowercase tags describing this image: objects, scene, setting, "+
			"colors, activities and style. Use one or two words per tag. "+
			"Reply with a comma-separated list and nothing else.", maxTags)
}

// ParseTags extracts tags from a model reply. It accepts a JSON array of
// strings or a comma/newline separated list, optionally bulleted.
func ParseTags(reply string, maxTags int) []string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)

	var arr []string
	if strings.HasPrefix(reply, "[") && json.Unmarshal([]byte(reply), &arr) == nil {
		return NormalizeTags(arr, maxTags)
	}

	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	return NormalizeTags(fields, maxTags)
}
