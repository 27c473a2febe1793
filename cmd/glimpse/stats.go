// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

func newStatsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store and index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStats(cmd)
		},
	}
	cmd.Flags().Bool("json", false, "print as JSON instead of YAML")
	return cmd
}

func newTagsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the tags usable in queries",
		Long:  "Print the configured tag vocabulary, or every tag in the index when no vocabulary is set.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.wire(ReadOnly(), WithoutExtractors())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if _, err := app.Search.Reload(cmd.Context()); err != nil {
				return err
			}
			for _, t := range app.Search.Tags() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func (c *cli) runStats(cmd *cobra.Command) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	app, err := c.wire(ReadOnly(), WithoutExtractors())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	if _, err := app.Search.Reload(ctx); err != nil {
		c.logger.Warn("index did not load", "error", err)
	}
	st, err := app.Search.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeCLIRequestFailure, "encoding stats")
	}
	return enc.Close()
}
