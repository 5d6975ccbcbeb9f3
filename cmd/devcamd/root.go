// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/devcam/internal/config"
	"github.com/ManuGH/devcam/internal/daemon"
	"github.com/ManuGH/devcam/internal/health"
	dlog "github.com/ManuGH/devcam/internal/log"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
}

func (o *rootOptions) path() string { return strings.TrimSpace(o.configPath) }

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "devcamd",
		Short: "Manual-exposure capture daemon",
		Long: `devcamd opens a camera device, keeps its preview running and executes
exposure sequences (Designs) requested over HTTP. Every captured frame is
paired with its metadata and written to the output directory.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (YAML)")

	cmd.AddCommand(newConfigCommand(opts))
	cmd.AddCommand(newHealthcheckCommand())
	return cmd
}

func runDaemon(ctx context.Context, opts *rootOptions) error {
	// Safe defaults until the config is loaded.
	dlog.Configure(dlog.Config{Level: "info", Service: "devcamd", Version: version})
	logger := dlog.WithComponent("daemon")

	path := opts.path()
	loader := config.NewLoader(path, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Str("config_path", path).Msg("failed to load configuration")
		return err
	}
	if err := dlog.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn().Err(err).Str("level", cfg.Log.Level).Msg("invalid log level, keeping info")
	}

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().Str("event", "config.loaded").Str("source", source).Str("path", path).Msg("configuration loaded")
	for _, key := range loader.UnknownEnvKeys(os.Environ()) {
		logger.Warn().Str("event", "config.unknown_env").Str("key", key).Msg("ignoring unknown environment variable")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().Err(err).Str("event", "startup.check_failed").Msg("startup checks failed, verify configuration and permissions")
		return err
	}

	components, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "bootstrap.failed").Msg("failed to initialize daemon")
		return err
	}

	var holder *config.Holder
	if path != "" {
		holder = config.NewHolder(cfg, loader)
	}
	app, err := daemon.NewApp(components, holder)
	if err != nil {
		_ = components.Close(context.WithoutCancel(ctx))
		return err
	}
	return app.Run(ctx)
}
