// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sigil-dev/glimpse/internal/config"
	"github.com/sigil-dev/glimpse/internal/extract"
	"github.com/sigil-dev/glimpse/internal/secrets"
	"github.com/sigil-dev/glimpse/internal/store/sqlite"
)

// doctorHTTPClient is used for API key checks. Tests point it at httptest.
var doctorHTTPClient = &http.Client{Timeout: 10 * time.Second}

func newDoctorCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the configuration, data directory, database, disk space and extractor API keys.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runDoctor(cmd)
		},
	}
	cmd.Flags().Bool("offline", false, "skip API key validation requests")
	return cmd
}

type check struct {
	name string
	fn   func() string
}

func (c *cli) runDoctor(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	offline, _ := cmd.Flags().GetBool("offline")

	cfg, err := c.loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(w, "%-20s %s\n", "Config:", "invalid: "+err.Error())
		return err
	}

	checks := []check{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return c.checkConfig() }},
		{"Data Dir", func() string { return checkDataDir(cfg.DataDir) }},
		{"Disk Space", func() string { return checkDiskSpace(cfg.DataDir) }},
		{"Database", func() string { return c.checkDatabase(cfg) }},
		{"Tagger", func() string {
			t := cfg.Extractors.Tagger
			return checkProvider(cmd.Context(), t.Provider, t.APIKey, t.BaseURL, offline)
		}},
		{"Embedder", func() string {
			e := cfg.Extractors.Embedder
			return checkProvider(cmd.Context(), e.Provider, e.APIKey, e.BaseURL, offline)
		}},
	}

	for _, ch := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", ch.name+":", ch.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("glimpse %s (commit %s)", version, commit)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func (c *cli) checkConfig() string {
	used := c.v.ConfigFileUsed()
	if used == "" {
		return "using defaults (no config file found)"
	}
	if insecure, mode := config.InsecurePermissions(used); insecure {
		return fmt.Sprintf("loaded from %s (WARNING: mode %s, run chmod 600)", used, mode)
	}
	return "loaded from " + used
}

func checkDataDir(dir string) string {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Sprintf("%s does not exist yet (created on first ingest)", dir)
	}
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("%s is not a directory", dir)
	}
	return dir
}

func (c *cli) checkDatabase(cfg *config.Config) string {
	path := cfg.Storage.Path
	if path == "" {
		path = filepath.Join(cfg.DataDir, sqlite.DefaultFilename)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Sprintf("no database at %s (run 'glimpse ingest')", path)
	}

	app, err := Wire(cfg, c.logger, secretStoreFactory(), ReadOnly(), WithoutExtractors())
	if err != nil {
		return fmt.Sprintf("error opening %s: %s", path, err)
	}
	defer func() { _ = app.Close() }()

	st, err := app.Store.Stats(context.Background())
	if err != nil {
		return fmt.Sprintf("error reading %s: %s", path, err)
	}
	return fmt.Sprintf("%d images, %d indexable, %s at %s", st.Images, st.Indexable, formatBytes(uint64(st.Bytes)), path)
}

func checkProvider(ctx context.Context, provider, key, baseURL string, offline bool) string {
	if provider == extract.ProviderNone || provider == "" {
		return "not configured"
	}
	if key == "" {
		return fmt.Sprintf("%s: no api_key set", provider)
	}
	key, err := secrets.Resolve(secretStoreFactory(), key)
	if err != nil {
		return fmt.Sprintf("%s: %s", provider, err)
	}
	if offline {
		return fmt.Sprintf("%s: key present (not validated)", provider)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := extract.ValidateKey(ctx, doctorHTTPClient, provider, key, baseURL); err != nil {
		return fmt.Sprintf("%s: %s", provider, err)
	}
	return fmt.Sprintf("%s: key accepted", provider)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}
	return formatBytes(stat.Bavail*uint64(stat.Bsize)) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1 << 30
		mb = 1 << 20
		kb = 1 << 10
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/gb)
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/mb)
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/kb)
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
