// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extract

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds simultaneous upstream requests per batch.
const DefaultConcurrency = 4

// ForEach calls fn for every image with at most limit calls in flight and
// collects the results in input order. The first error cancels the rest.
func ForEach[T any](ctx context.Context, images []Image, limit int, fn func(context.Context, Image) (T, error)) ([]T, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	out := make([]T, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, img := range images {
		g.Go(func() error {
			res, err := fn(gctx, img)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
