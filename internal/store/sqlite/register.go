// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"path/filepath"

	"github.com/sigil-dev/glimpse/internal/store"
)

// DefaultFilename is the database file created under the data directory
// when no explicit path is configured.
const DefaultFilename = "glimpse.db"

func init() {
	store.RegisterBackend("sqlite", openContentStore)
}

func openContentStore(cfg store.StorageConfig, dataPath string) (store.ContentStore, error) {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(dataPath, DefaultFilename)
	}
	if cfg.ReadOnly {
		return OpenReadOnly(path)
	}
	return NewContentStore(path)
}
