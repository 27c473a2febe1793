// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

func newGetCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <hash>",
		Short: "Write a stored image (or its preview) to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGet(cmd, args[0])
		},
	}
	cmd.Flags().Bool("preview", false, "fetch the preview, falling back to the original")
	cmd.Flags().StringP("output", "o", "", `output file, "-" for stdout (default <hash><ext>)`)
	return cmd
}

func (c *cli) runGet(cmd *cobra.Command, hash string) error {
	preview, _ := cmd.Flags().GetBool("preview")
	output, _ := cmd.Flags().GetString("output")

	app, err := c.wire(ReadOnly(), WithoutExtractors())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	var blob store.Blob
	if preview {
		blob, err = app.Search.Preview(cmd.Context(), hash)
	} else {
		blob, err = app.Search.Image(cmd.Context(), hash)
	}
	if err != nil {
		return err
	}

	if output == "-" {
		_, err := cmd.OutOrStdout().Write(blob.Data)
		return err
	}
	if output == "" {
		output = hash + blob.Extension
	}
	if err := os.WriteFile(output, blob.Data, 0o644); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeCLIRequestFailure, "writing image", sigilerr.FieldPath(output))
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", output, formatBytes(uint64(len(blob.Data))))
	return nil
}
