// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package ingest moves raw images into a content store in batches:
// decode, hash and store each image, extract tags and embeddings once per
// batch, persist them, and commit.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sigil-dev/glimpse/internal/extract"
	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// DefaultBatchSize is the number of items per batch.
const DefaultBatchSize = 16

// Config controls pipeline behaviour.
type Config struct {
	BatchSize     int
	PreviewHeight int
	// SkipComplete skips extraction for images that already have both
	// descriptors. When false, re-ingesting an image replaces them.
	SkipComplete bool
	Logger       *slog.Logger
}

// Pipeline ingests images into a ContentStore. Tagger and embedder may both
// be nil, in which case only image rows are written and descriptors are
// left for Backfill.
type Pipeline struct {
	store    store.ContentStore
	tagger   extract.Tagger
	embedder extract.ImageEmbedder
	cfg      Config
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config, cs store.ContentStore, tagger extract.Tagger, embedder extract.ImageEmbedder) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PreviewHeight == 0 {
		cfg.PreviewHeight = DefaultPreviewHeight
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: cs, tagger: tagger, embedder: embedder, cfg: cfg, logger: logger}
}

// BatchSize returns the configured batch size.
func (p *Pipeline) BatchSize() int { return p.cfg.BatchSize }

// pendingImage is a stored image awaiting descriptors. results lists the
// report rows that share its hash.
type pendingImage struct {
	hash    store.ContentHash
	image   extract.Image
	results []int
	skip    bool
}

// Process ingests one batch. Items that fail to decode are recorded and
// dropped while the rest continue. On cancellation the whole batch is
// rolled back and an interrupted error is returned alongside the report.
func (p *Pipeline) Process(ctx context.Context, items []Item) (*BatchReport, error) {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	report := newBatchReport(names)
	log := p.logger.With("batch", report.ID)

	pending, err := p.open(ctx, log, report, items)
	if err == nil {
		err = p.describe(ctx, log, report, pending)
	}
	return p.finish(log, report, err)
}

// open decodes and stores every item, collapsing duplicates.
func (p *Pipeline) open(ctx context.Context, log *slog.Logger, report *BatchReport, items []Item) ([]*pendingImage, error) {
	var pending []*pendingImage
	byHash := map[store.ContentHash]*pendingImage{}

	for i, it := range items {
		if err := interrupted(ctx, report); err != nil {
			return nil, err
		}
		res := &report.Results[i]

		dec, err := Decode(it.Data, it.Name, p.cfg.PreviewHeight)
		if err != nil {
			log.Warn("skipping undecodable image", "name", it.Name, "error", err)
			res.Status = StatusDecodeFailed
			res.Error = err.Error()
			continue
		}

		hash, err := p.store.InsertImage(ctx, store.NewImage{
			Raw:              it.Data,
			Extension:        dec.Extension,
			Timestamp:        dec.Timestamp,
			Preview:          dec.Preview,
			PreviewExtension: dec.PreviewExtension,
		})
		if err != nil {
			if ierr := interrupted(ctx, report); ierr != nil {
				return nil, ierr
			}
			return nil, sigilerr.With(err, sigilerr.FieldBatch(report.ID), sigilerr.FieldPath(it.Name))
		}
		res.Hash = hash

		if pi, dup := byHash[hash]; dup {
			res.Duplicate = true
			pi.results = append(pi.results, i)
			continue
		}

		pi := &pendingImage{hash: hash, image: dec.Image, results: []int{i}}
		byHash[hash] = pi

		if p.cfg.SkipComplete {
			d, err := p.store.Has(ctx, hash)
			if err != nil {
				return nil, sigilerr.With(err, sigilerr.FieldBatch(report.ID))
			}
			if d.Complete() {
				pi.skip = true
				continue
			}
		}
		pending = append(pending, pi)
	}

	for _, pi := range byHash {
		if pi.skip {
			setStatus(report, pi, StatusSkipped, "")
		}
	}
	return pending, nil
}

// describe runs the extractors once over pending and persists their output.
func (p *Pipeline) describe(ctx context.Context, log *slog.Logger, report *BatchReport, pending []*pendingImage) error {
	if len(pending) == 0 {
		return nil
	}
	if p.tagger == nil || p.embedder == nil {
		for _, pi := range pending {
			setStatus(report, pi, StatusStored, "")
		}
		return nil
	}

	report.State = StateExtracting
	if err := interrupted(ctx, report); err != nil {
		return err
	}

	images := make([]extract.Image, len(pending))
	for i, pi := range pending {
		images[i] = pi.image
	}

	tags, vecs, err := p.extract(ctx, images)
	if err != nil {
		if ierr := interrupted(ctx, report); ierr != nil {
			return ierr
		}
		log.Warn("extraction failed; images stored without descriptors", "images", len(pending), "error", err)
		for _, pi := range pending {
			setStatus(report, pi, StatusExtractFailed, err.Error())
		}
		return nil
	}

	report.State = StatePersisting
	for i, pi := range pending {
		if err := interrupted(ctx, report); err != nil {
			return err
		}
		err := p.store.InsertDescriptors(ctx, pi.hash, tags[i], vecs[i])
		switch {
		case err == nil:
			setStatus(report, pi, StatusIndexed, "")
		case sigilerr.IsInvalidInput(err):
			log.Warn("extractor output rejected", "hash", pi.hash, "error", err)
			setStatus(report, pi, StatusExtractFailed, err.Error())
		default:
			if ierr := interrupted(ctx, report); ierr != nil {
				return ierr
			}
			return sigilerr.With(err, sigilerr.FieldBatch(report.ID), sigilerr.FieldHash(string(pi.hash)))
		}
	}
	return nil
}

// extract calls each extractor exactly once for the batch.
func (p *Pipeline) extract(ctx context.Context, images []extract.Image) ([][]string, [][]float32, error) {
	for _, x := range []any{p.tagger, p.embedder} {
		if a, ok := x.(extract.Availability); ok && !a.Available(ctx) {
			return nil, nil, sigilerr.New(sigilerr.CodeExtractUnavailable, "extractor is cooling down after a failure")
		}
	}

	tags, err := p.tagger.ExtractTags(ctx, images)
	if err != nil {
		return nil, nil, sigilerr.Errorf(sigilerr.CodeIngestExtractFailure, "extracting tags with %s: %w", p.tagger.Name(), err)
	}
	if err := extract.CheckCount(p.tagger.Name(), len(images), len(tags)); err != nil {
		return nil, nil, err
	}

	vecs, err := p.embedder.EmbedImages(ctx, images)
	if err != nil {
		return nil, nil, sigilerr.Errorf(sigilerr.CodeIngestExtractFailure, "embedding images with %s: %w", p.embedder.Name(), err)
	}
	if err := extract.CheckCount(p.embedder.Name(), len(images), len(vecs)); err != nil {
		return nil, nil, err
	}
	return tags, vecs, nil
}

// finish commits or rolls back the batch.
func (p *Pipeline) finish(log *slog.Logger, report *BatchReport, err error) (*BatchReport, error) {
	defer func() { report.Finished = time.Now() }()

	if err == nil {
		if err = p.store.Commit(); err == nil {
			report.State = StateCommitted
			log.Info("batch committed",
				"items", len(report.Results),
				"indexed", report.Count(StatusIndexed),
				"stored", report.Count(StatusStored),
				"skipped", report.Count(StatusSkipped),
				"decode_failed", report.Count(StatusDecodeFailed),
				"extract_failed", report.Count(StatusExtractFailed))
			return report, nil
		}
	}

	report.State = StateAborted
	if rbErr := p.store.Rollback(); rbErr != nil {
		log.Error("rolling back batch", "error", rbErr)
		err = errors.Join(err, rbErr)
	}
	if sigilerr.IsInterrupted(err) {
		log.Warn("batch interrupted; rolled back", "items", len(report.Results))
	} else {
		log.Error("batch aborted", "error", err)
	}
	return report, err
}

func setStatus(report *BatchReport, pi *pendingImage, s Status, msg string) {
	for _, i := range pi.results {
		report.Results[i].Status = s
		report.Results[i].Error = msg
	}
}

// interrupted returns an InterruptedIngestion error once ctx is done.
func interrupted(ctx context.Context, report *BatchReport) error {
	if ctx.Err() == nil {
		return nil
	}
	return sigilerr.Wrap(ctx.Err(), sigilerr.CodeIngestBatchInterrupted, "ingestion interrupted",
		sigilerr.FieldBatch(report.ID), sigilerr.Field("state", string(report.State)))
}
