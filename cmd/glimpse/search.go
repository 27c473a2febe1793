// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/glimpse/internal/search"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
)

func newSearchCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the stored images closest to a query",
		Long: "Query by tags, free text, an example image, or any combination. Tags alone rank by " +
			"tag overlap, text or an image alone rank by embedding similarity, and both together " +
			"use the combined score.",
		Example: "  glimpse search --tag beach --tag sunset\n" +
			"  glimpse search --text \"a dog catching a frisbee\" -k 5\n" +
			"  glimpse search --image ./query.jpg --json",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runSearch(cmd)
		},
	}

	cmd.Flags().StringSliceP("tag", "t", nil, "query tag (repeatable)")
	cmd.Flags().String("text", "", "free-text query")
	cmd.Flags().String("image", "", "path to an example image")
	cmd.Flags().IntP("top-k", "k", 0, "number of results (default from search.top_k)")
	cmd.Flags().Bool("json", false, "print results as JSON")

	return cmd
}

func (c *cli) runSearch(cmd *cobra.Command) error {
	tags, _ := cmd.Flags().GetStringSlice("tag")
	text, _ := cmd.Flags().GetString("text")
	imagePath, _ := cmd.Flags().GetString("image")
	k, _ := cmd.Flags().GetInt("top-k")
	asJSON, _ := cmd.Flags().GetBool("json")

	req := search.Request{Tags: tags, Text: text, K: k}
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return sigilerr.Wrap(err, sigilerr.CodeCLIInputInvalid, "reading query image", sigilerr.FieldPath(imagePath))
		}
		req.Image = data
	}
	if len(req.Tags) == 0 && req.Text == "" && req.Image == nil {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "give at least one of --tag, --text or --image")
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	app, err := c.wire(ReadOnly())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if _, err := app.Search.Reload(ctx); err != nil {
		return err
	}
	resp, err := app.Search.Search(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResults(out, resp)
	return nil
}

func printResults(w io.Writer, resp *search.Response) {
	if len(resp.Results) == 0 {
		_, _ = fmt.Fprintln(w, dimStyle.Render("no results"))
		return
	}

	rows := make([][]string, len(resp.Results))
	for i, r := range resp.Results {
		rows[i] = []string{strconv.Itoa(i + 1), r.ID.String(), strconv.FormatFloat(r.Score, 'f', 4, 64)}
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("#", "HASH", "SCORE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	_, _ = fmt.Fprintln(w, t.Render())
	query := string(resp.Mode)
	if len(resp.Tags) > 0 {
		query += fmt.Sprintf(" %v", resp.Tags)
	}
	_, _ = fmt.Fprintln(w, dimStyle.Render("scored by "+query))
}
