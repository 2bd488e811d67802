// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/mediafetch/internal/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	var checkBinaries bool
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loader, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if checkBinaries {
				if err := config.CheckBinaries(cfg); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration valid")
			if env := loader.ConsumedEnv(); len(env) > 0 {
				fmt.Fprintf(out, "environment overrides: %s\n", strings.Join(env, ", "))
			}
			return nil
		},
	}
	validate.Flags().BoolVar(&checkBinaries, "check-binaries", false, "also require yt-dlp and ffmpeg on PATH")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML (token redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.API.Token != "" {
				cfg.API.Token = "***redacted***"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(validate, show)
	return cmd
}
