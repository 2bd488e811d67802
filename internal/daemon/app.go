// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon owns the long-running serve mode.
package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mediafetch/internal/config"
	"github.com/ManuGH/mediafetch/internal/log"
)

// ErrNoManager is returned by Run when the App has no server manager.
var ErrNoManager = errors.New("daemon: server manager is required")

// Janitor evicts finished jobs until ctx is done.
type Janitor interface {
	RunJanitor(ctx context.Context) error
}

// Applier receives reloaded configurations.
type Applier interface {
	Apply(cfg config.AppConfig) error
}

// App owns the long-lived runtime lifecycle (watcher, reload wiring, janitor)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.Holder
	applier      Applier
	janitor      Janitor
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder, applier and janitor may be nil.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.Holder, applier Applier, janitor Janitor) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		applier:      applier,
		janitor:      janitor,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrNoManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// The watcher is best-effort; startup continues without it.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.cfgHolder.Stop()
	}

	if a.cfgHolder != nil && a.applier != nil {
		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, a.reloadSignal)
			defer signal.Stop(hup)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hup:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	if a.janitor != nil {
		g.Go(func() error { return a.janitor.RunJanitor(ctx) })
	}

	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	return g.Wait()
}

func (a *App) apply(cfg config.AppConfig) {
	log.Configure(log.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
	if err := a.applier.Apply(cfg); err != nil {
		a.logger.Error().Err(err).Str(log.FieldEvent, "config.apply_failed").Msg("reloaded config could not be applied")
		return
	}
	a.logger.Info().Str(log.FieldEvent, "config.applied").Msg("reloaded config applied")
}
