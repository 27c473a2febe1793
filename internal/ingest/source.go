// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// DefaultExtensions are the file extensions DirSource picks up when none
// are configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Source yields items to ingest. Next returns io.EOF when exhausted.
type Source interface {
	Next(ctx context.Context) (Item, error)
}

// SliceSource yields a fixed list of items.
type SliceSource struct {
	items []Item
	pos   int
}

// NewSliceSource creates a SliceSource over items.
func NewSliceSource(items ...Item) *SliceSource {
	return &SliceSource{items: items}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if s.pos >= len(s.items) {
		return Item{}, io.EOF
	}
	it := s.items[s.pos]
	s.pos++
	return it, nil
}

// DirSource walks a directory tree in lexical order and yields every file
// whose extension matches, case-insensitively. Hidden directories are not
// descended into.
type DirSource struct {
	root       string
	extensions []string
	paths      []string
	walked     bool
	pos        int
}

// NewDirSource creates a DirSource rooted at root. A nil or empty
// extensions list uses DefaultExtensions.
func NewDirSource(root string, extensions []string) *DirSource {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[i] = e
	}
	return &DirSource{root: root, extensions: exts}
}

// Next implements Source.
func (d *DirSource) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if !d.walked {
		if err := d.walk(); err != nil {
			return Item{}, err
		}
	}
	if d.pos >= len(d.paths) {
		return Item{}, io.EOF
	}
	path := d.paths[d.pos]
	d.pos++

	data, err := os.ReadFile(path)
	if err != nil {
		return Item{}, sigilerr.Wrap(err, sigilerr.CodeIngestSourceReadFailure, "reading image file",
			sigilerr.FieldPath(path))
	}
	return Item{Name: path, Data: data}, nil
}

// Len returns the number of matching files. It walks the tree if needed.
func (d *DirSource) Len() (int, error) {
	if !d.walked {
		if err := d.walk(); err != nil {
			return 0, err
		}
	}
	return len(d.paths), nil
}

func (d *DirSource) walk() error {
	d.walked = true
	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			if path != d.root && strings.HasPrefix(e.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if e.Type().IsRegular() && slices.Contains(d.extensions, strings.ToLower(filepath.Ext(path))) {
			d.paths = append(d.paths, path)
		}
		return nil
	})
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIngestSourceReadFailure, "walking image directory",
			sigilerr.FieldPath(d.root))
	}
	return nil
}
