// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

const groupOrOtherRead fs.FileMode = 0o044

// InsecurePermissions reports whether the file at path is readable by its
// group or by other users. Missing files are not insecure.
func InsecurePermissions(path string) (bool, fs.FileMode) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0
	}
	return info.Mode().Perm()&groupOrOtherRead != 0, info.Mode().Perm()
}

// WarnInsecurePermissions logs a warning when the config file at path can
// be read by other users. API keys kept in the file would be exposed. It
// never fails startup.
func WarnInsecurePermissions(logger *slog.Logger, path string) bool {
	if path == "" {
		return false
	}
	insecure, mode := InsecurePermissions(path)
	if insecure {
		logger.Warn("config file has insecure permissions; api keys may be readable by other users",
			"path", path, "mode", mode, "recommended", "0600")
	}
	return insecure
}
