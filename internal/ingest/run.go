// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// Run drains src in batches of the configured size. It stops at the first
// batch that aborts; batches committed before that stay committed.
// onBatch, when non-nil, is called after every processed batch.
func (p *Pipeline) Run(ctx context.Context, src Source, onBatch func(*BatchReport)) (*RunReport, error) {
	run := &RunReport{Statuses: map[Status]int{}}
	batch := make([]Item, 0, p.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		report, err := p.Process(ctx, batch)
		run.add(report)
		if onBatch != nil {
			onBatch(report)
		}
		batch = batch[:0]
		return err
	}

	for {
		it, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return run, sigilerr.Wrap(ctx.Err(), sigilerr.CodeIngestBatchInterrupted, "ingestion interrupted")
			}
			return run, err
		}
		batch = append(batch, it)
		if len(batch) == p.cfg.BatchSize {
			if err := flush(); err != nil {
				return run, err
			}
		}
	}
	return run, flush()
}

// Backfill re-runs extraction for up to limit stored images that are
// missing tags or an embedding. limit <= 0 means all of them. Images whose
// extraction fails again stay incomplete for a later pass.
func (p *Pipeline) Backfill(ctx context.Context, limit int, onBatch func(*BatchReport)) (*RunReport, error) {
	hashes, err := p.store.Incomplete(ctx, limit)
	if err != nil {
		return nil, err
	}
	p.logger.Info("backfilling incomplete images", "count", len(hashes))

	return p.Run(ctx, &storeSource{store: p.store, hashes: hashes}, onBatch)
}

// storeSource yields stored originals one at a time so a backfill holds at
// most one batch of image bytes in memory.
type storeSource struct {
	store  store.ContentStore
	hashes []store.ContentHash
	pos    int
}

// Next implements Source. Hashes that vanished from the store are skipped.
func (s *storeSource) Next(ctx context.Context) (Item, error) {
	for s.pos < len(s.hashes) {
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}
		h := s.hashes[s.pos]
		s.pos++
		blob, ok, err := s.store.RetrieveImage(ctx, h)
		if err != nil {
			return Item{}, err
		}
		if ok {
			return Item{Name: h.String() + blob.Extension, Data: blob.Data}, nil
		}
	}
	return Item{}, io.EOF
}
