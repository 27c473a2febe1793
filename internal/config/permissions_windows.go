// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build windows

package config

import (
	"io/fs"
	"log/slog"
)

// InsecurePermissions always reports false: Windows uses ACLs, not mode bits.
func InsecurePermissions(string) (bool, fs.FileMode) { return false, 0 }

// WarnInsecurePermissions is a no-op on Windows.
func WarnInsecurePermissions(logger *slog.Logger, path string) bool {
	if path != "" {
		logger.Debug("config permission check not implemented on Windows", "path", path)
	}
	return false
}
