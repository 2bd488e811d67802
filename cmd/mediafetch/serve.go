// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/mediafetch/internal/config"
	"github.com/ManuGH/mediafetch/internal/daemon"
	"github.com/ManuGH/mediafetch/internal/health"
	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/telemetry"
	"github.com/ManuGH/mediafetch/internal/version"
)

func newServeCmd(configPath *string) *cobra.Command {
	var skipChecks bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job API and dispatcher",
		Long: `Run the HTTP job API. Jobs submitted to /api/v1/jobs are downloaded,
size-gated and copied into the outbox directory. The config file is watched
and reloaded on change or SIGHUP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *configPath, skipChecks)
		},
	}
	cmd.Flags().BoolVar(&skipChecks, "skip-startup-checks", false, "do not verify directories and binaries before serving")
	return cmd
}

func runServe(ctx context.Context, configPath string, skipChecks bool) error {
	cfg, loader, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("config", loader.Path()).
		Strs("env_overrides", loader.ConsumedEnv()).
		Msg("starting mediafetch")

	if !skipChecks {
		if err := health.PerformStartupChecks(ctx, cfg); err != nil {
			return fmt.Errorf("startup checks: %w", err)
		}
	}

	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	rt, err := daemon.Bootstrap(cfg, newLauncher())
	if err != nil {
		_ = provider.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	srvCfg := daemon.DefaultServerConfig(cfg.API.ListenAddr)
	srvCfg.ShutdownTimeout = cfg.API.ShutdownTimeout
	mgr, err := daemon.NewManager(srvCfg, rt.API.Handler(), logger)
	if err != nil {
		_ = provider.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	// Hooks run LIFO: jobs drain before the tracer flushes their spans.
	mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
	mgr.RegisterShutdownHook("jobs", rt.Jobs.Shutdown)

	holder := config.NewHolder(cfg, loader)
	return daemon.NewApp(logger, mgr, holder, rt, rt.Jobs).Run(ctx)
}
