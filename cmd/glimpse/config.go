// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/glimpse/internal/config"
	"github.com/sigil-dev/glimpse/internal/secrets"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, with API keys redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			redact(&cfg.Extractors.Tagger.APIKey)
			redact(&cfg.Extractors.Embedder.APIKey)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return sigilerr.Wrap(err, sigilerr.CodeCLIRequestFailure, "encoding config")
			}
			return enc.Close()
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			used := c.v.ConfigFileUsed()
			if used == "" {
				used = "(none; defaults and environment only)"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), used)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the commented default configuration",
		Long:  "Write the default configuration to path, or to ~/.config/glimpse/glimpse.yaml. Existing files are never overwritten.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				target = args[0]
			}
			if err := config.WriteDefault(target); err != nil {
				if errors.Is(err, os.ErrExist) {
					return sigilerr.Errorf(sigilerr.CodeConfigAlreadyExists, "%s already exists", target)
				}
				return sigilerr.Wrap(err, sigilerr.CodeCLIRequestFailure, "writing config", sigilerr.FieldPath(target))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return err
		},
	}

	cmd.AddCommand(show, path, initCmd)
	return cmd
}

// redact hides literal API keys. keyring:// references are not secret and
// are kept so the output shows where a key comes from.
func redact(key *string) {
	if *key != "" && !secrets.IsURI(*key) {
		*key = "<redacted>"
	}
}
