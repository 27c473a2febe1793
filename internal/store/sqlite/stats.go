// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"

	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// Stats reports row counts and the distinct embedding widths on disk.
// Widths are measured with sqlite-vec's vec_length so a store holding mixed
// embedding models is visible before an index build rejects it.
func (s *ContentStore) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.reader()
	if err != nil {
		return store.Stats{}, err
	}

	st := store.Stats{Backend: "sqlite", Path: s.path, ReadOnly: s.readOnly}

	const counts = `SELECT
	(SELECT COUNT(*) FROM images),
	(SELECT COUNT(*) FROM images WHERE small_bytes IS NOT NULL),
	(SELECT COUNT(*) FROM tags),
	(SELECT COUNT(*) FROM embeddings),
	(SELECT COUNT(*) FROM tags t JOIN embeddings e ON e.id = t.id),
	(SELECT COALESCE(SUM(LENGTH(bytes)), 0) FROM images),
	(SELECT COALESCE(AVG(json_array_length(tags)), 0) FROM tags)`

	if err := q.QueryRowContext(ctx, counts).Scan(
		&st.Images, &st.Previews, &st.Tagged, &st.Embedded, &st.Indexable, &st.Bytes, &st.MeanTagsPerRow,
	); err != nil {
		return store.Stats{}, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "counting rows: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT DISTINCT vec_length(embedding) AS width FROM embeddings ORDER BY width`)
	if err != nil {
		return store.Stats{}, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "measuring embedding widths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	st.EmbeddingWidths = []int{}
	for rows.Next() {
		var w int
		if err := rows.Scan(&w); err != nil {
			return store.Stats{}, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "scanning embedding width: %w", err)
		}
		st.EmbeddingWidths = append(st.EmbeddingWidths, w)
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "iterating embedding widths: %w", err)
	}
	return st, nil
}
