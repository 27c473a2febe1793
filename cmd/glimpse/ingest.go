// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/glimpse/internal/ingest"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

func newIngestCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Store images and extract their tags and embeddings",
		Long: "Ingest image files or directories (walked recursively). Each batch is committed " +
			"atomically; an interrupted run keeps every batch committed before the interruption.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runIngest(cmd, args)
		},
	}

	cmd.Flags().Int("batch-size", 0, "images per batch (default from ingest.batch_size)")
	cmd.Flags().Bool("skip-complete", false, "skip images that already have tags and an embedding")
	_ = c.v.BindPFlag("ingest.batch_size", cmd.Flags().Lookup("batch-size"))
	_ = c.v.BindPFlag("ingest.skip_complete", cmd.Flags().Lookup("skip-complete"))

	return cmd
}

func newBackfillCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Extract descriptors for stored images that are missing them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runBackfill(cmd)
		},
	}
	cmd.Flags().Int("limit", 0, "maximum images to process (0 for all)")
	return cmd
}

func (c *cli) runIngest(cmd *cobra.Command, paths []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	app, err := c.wire()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if app.Tagger == nil || app.Embedder == nil {
		c.logger.Warn("no extractors configured; images are stored without descriptors until backfill")
	}

	out := cmd.OutOrStdout()
	total := &ingest.RunReport{}
	for _, path := range paths {
		src, err := sourceFor(path, app.Config.Ingest.Extensions)
		if err != nil {
			return err
		}
		report, err := app.Pipeline.Run(ctx, src, func(b *ingest.BatchReport) { printBatch(out, b) })
		merge(total, report)
		if err != nil {
			printRun(out, total)
			return err
		}
	}
	printRun(out, total)
	return nil
}

func (c *cli) runBackfill(cmd *cobra.Command) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "--limit must not be negative, got %d", limit)
	}

	app, err := c.wire()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if err := app.requireExtractors("backfill"); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	report, err := app.Pipeline.Backfill(ctx, limit, func(b *ingest.BatchReport) { printBatch(out, b) })
	if report != nil {
		printRun(out, report)
	}
	return err
}

// sourceFor walks directories and reads single files directly.
func sourceFor(path string, exts []string) (ingest.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeCLIInputInvalid, "reading input", sigilerr.FieldPath(path))
	}
	if info.IsDir() {
		return ingest.NewDirSource(path, exts), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIngestSourceReadFailure, "reading image", sigilerr.FieldPath(path))
	}
	return ingest.NewSliceSource(ingest.Item{Name: filepath.Base(path), Data: data}), nil
}

func merge(dst, src *ingest.RunReport) {
	if src == nil {
		return
	}
	if dst.Statuses == nil {
		dst.Statuses = map[ingest.Status]int{}
	}
	dst.Batches += src.Batches
	dst.Items += src.Items
	for s, n := range src.Statuses {
		dst.Statuses[s] += n
	}
}

var statusOrder = []ingest.Status{
	ingest.StatusIndexed,
	ingest.StatusStored,
	ingest.StatusSkipped,
	ingest.StatusExtractFailed,
	ingest.StatusDecodeFailed,
}

func printBatch(w io.Writer, b *ingest.BatchReport) {
	var parts []string
	for _, s := range statusOrder {
		if n := b.Count(s); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	_, _ = fmt.Fprintf(w, "batch %s %s: %s\n", shortID(b.ID), b.State, strings.Join(parts, ", "))
	for _, r := range b.Results {
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "  %s: %s: %s\n", r.Name, r.Status, r.Error)
		}
	}
}

func printRun(w io.Writer, r *ingest.RunReport) {
	var parts []string
	for _, s := range statusOrder {
		if n := r.Statuses[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	_, _ = fmt.Fprintf(w, "%d items in %d batches: %s\n", r.Items, r.Batches, strings.Join(parts, ", "))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
