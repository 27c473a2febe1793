// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

//go:embed glimpse.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/glimpse/glimpse.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "resolving home directory: %v", err)
	}
	return filepath.Join(home, ".config", "glimpse", "glimpse.yaml"), nil
}

// BootstrapConfig writes the commented default config to the default path
// unless a file is already there. It returns the path written, or "" when
// nothing was written. Failures are logged at debug level and skipped.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	if WriteDefault(cfgPath) != nil {
		return ""
	}
	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}

// WriteDefault writes DefaultConfigYAML to path with owner-only permissions.
// An existing file is left untouched and reported as os.ErrExist.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.ErrExist
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return err
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return err
	}
	return nil
}
