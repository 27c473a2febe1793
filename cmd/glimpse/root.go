// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/glimpse/internal/config"
	"github.com/sigil-dev/glimpse/internal/secrets"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// secretStoreFactory creates the secrets.Store used to resolve keyring://
// API keys and by the secret commands. Tests substitute an in-memory store.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// cli is the state shared by every subcommand of one root command. Each
// root gets its own viper instance so repeated Execute calls in one
// process do not leak configuration into each other.
type cli struct {
	v      *viper.Viper
	logger *slog.Logger
}

// NewRootCmd creates the root glimpse command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), logger: slog.Default()}

	root := &cobra.Command{
		Use:   "glimpse",
		Short: "Glimpse: content-addressable image store with tag and embedding search",
		Long: "Glimpse stores images by content hash, describes them with model-generated tags " +
			"and embeddings, and answers nearest-neighbour queries by tags, text or example image.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newIngestCmd(c),
		newBackfillCmd(c),
		newSearchCmd(c),
		newGetCmd(c),
		newTagsCmd(c),
		newStatsCmd(c),
		newServeCmd(c),
		newSecretCmd(),
		newConfigCmd(c),
		newInitCmd(),
		newDoctorCmd(c),
		newVersionCmd(),
	)

	return root
}

// init applies defaults, environment, flags and the config file to c.v so
// the usual precedence (flag > env > file > defaults) holds everywhere.
func (c *cli) init(cmd *cobra.Command) error {
	config.SetDefaults(c.v)
	config.SetupEnv(c.v)

	flags := cmd.Root().PersistentFlags()
	if err := c.v.BindPFlag("data_dir", flags.Lookup("data-dir")); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := c.v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	level := slog.LevelInfo
	if c.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.logger)

	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config file: %v", err)
		}
		return nil
	}

	// SetConfigType is left unset: viper would otherwise also try the bare
	// name, which collides with a ./glimpse binary.
	c.v.SetConfigName("glimpse")
	c.v.AddConfigPath(".")
	c.v.AddConfigPath("$HOME/.config/glimpse")
	c.v.AddConfigPath("/etc/glimpse")
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config: %v", err)
		}
		if path := config.BootstrapConfig(); path != "" {
			c.v.SetConfigFile(path)
			if err := c.v.ReadInConfig(); err != nil {
				return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %v", err)
			}
		}
	}
	return nil
}

// loadConfig decodes and validates the effective configuration.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(c.v)
	if err != nil {
		return nil, err
	}
	config.WarnInsecurePermissions(c.logger, c.v.ConfigFileUsed())
	return cfg, nil
}

// wire loads the configuration and builds the application.
func (c *cli) wire(opts ...WireOption) (*App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return Wire(cfg, c.logger, secretStoreFactory(), opts...)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
