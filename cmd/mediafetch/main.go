// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command mediafetch downloads media through yt-dlp, fits it under the
// delivery size limit and hands it to an outbox.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/mediafetch/internal/config"
	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/proc"
	"github.com/ManuGH/mediafetch/internal/version"
)

// newLauncher is swapped in tests.
var newLauncher = func() proc.Launcher { return &proc.ExecLauncher{} }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "mediafetch",
		Short:         "Fetch media via yt-dlp and deliver it under a size limit",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	root.AddCommand(
		newServeCmd(&configPath),
		newFetchCmd(&configPath),
		newConfigCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads and validates the configuration and configures logging.
func loadConfig(path string) (config.AppConfig, *config.Loader, error) {
	log.Configure(log.Config{Level: "info", Output: os.Stderr, Version: version.Version})

	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.AppConfig{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Output: os.Stderr, Service: cfg.LogService, Version: version.Version})
	return cfg, loader, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
