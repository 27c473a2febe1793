// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Command glimpse ingests images into a content-addressable store and
// searches them by tags, text or example image.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
