// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/sigil-dev/glimpse/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search and image retrieval over HTTP",
		Long:  "Load the index and start the HTTP API. The OpenAPI document is served at /openapi.json.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().Bool("allow-ingest", false, "accept uploads on POST /api/v1/images")
	_ = c.v.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	_ = c.v.BindPFlag("server.allow_ingest", cmd.Flags().Lookup("allow-ingest"))

	return cmd
}

func (c *cli) runServe(cmd *cobra.Command) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	server.Version = version

	var opts []WireOption
	if !c.v.GetBool("server.allow_ingest") {
		opts = append(opts, ReadOnly())
	}
	app, err := c.wire(opts...)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	// A missing or empty index is not fatal: /health reports degraded and
	// POST /api/v1/index/reload retries.
	if idx, err := app.Search.Reload(ctx); err != nil {
		c.logger.Warn("index did not load", "error", err)
	} else {
		c.logger.Info("index loaded", "rows", idx.Len(), "dim", idx.Dim())
	}

	srv, err := app.Server()
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
