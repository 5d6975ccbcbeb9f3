// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/devcam/internal/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the daemon configuration",
	}
	cmd.AddCommand(newConfigValidateCommand(opts))
	cmd.AddCommand(newConfigDumpCommand(opts))
	return cmd
}

func displayPath(path string) string {
	if path == "" {
		return "environment"
	}
	return path
}

func loadConfig(opts *rootOptions) (config.AppConfig, error) {
	cfg, err := config.NewLoader(opts.path(), version).Load()
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("configuration error in %s: %w", displayPath(opts.path()), err)
	}
	return cfg, nil
}

func newConfigValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate",
		Short:         "Load and validate the configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", displayPath(opts.path()))
			return nil
		},
	}
}

// newConfigDumpCommand prints the effective configuration (defaults, file, env).
func newConfigDumpCommand(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:           "dump",
		Short:         "Print the effective configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "yaml" && format != "yml" && format != "json" {
				return usageError("unknown format %q (yaml or json)", format)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode yaml: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}
