// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"fmt"

	"github.com/ManuGH/mediafetch/internal/api"
	"github.com/ManuGH/mediafetch/internal/api/middleware"
	"github.com/ManuGH/mediafetch/internal/artifact"
	"github.com/ManuGH/mediafetch/internal/config"
	"github.com/ManuGH/mediafetch/internal/delivery"
	"github.com/ManuGH/mediafetch/internal/health"
	"github.com/ManuGH/mediafetch/internal/jobs"
	"github.com/ManuGH/mediafetch/internal/pipeline"
	"github.com/ManuGH/mediafetch/internal/proc"
	"github.com/ManuGH/mediafetch/internal/stats"
	"github.com/ManuGH/mediafetch/internal/transcode"
	"github.com/ManuGH/mediafetch/internal/ytdlp"
)

const apiTracerName = "mediafetch/api"

// Runtime is the wired object graph of a serving daemon.
type Runtime struct {
	Counters *stats.Counters
	Launcher proc.Launcher
	Outbox   *delivery.Outbox
	Jobs     *jobs.Manager
	Health   *health.Manager
	API      *api.Server
}

// BuildPipeline wires a pipeline from cfg. launcher nil selects real
// processes.
func BuildPipeline(cfg config.AppConfig, counters pipeline.Counters, launcher proc.Launcher) (*pipeline.Pipeline, error) {
	if launcher == nil {
		launcher = &proc.ExecLauncher{}
	}
	ws, err := artifact.NewWorkspace(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	builder := &ytdlp.Builder{
		Bin:          cfg.Downloader.Bin,
		WorkDir:      ws.Dir(),
		SearchPrefix: cfg.Downloader.SearchPrefix,
		Cookies:      cfg.Sources.Cookies,
		Identities:   cfg.Sources.Identities,
	}
	gate := &transcode.Gate{
		Launcher:     launcher,
		Settings:     cfg.Transcoder,
		MaxBytes:     cfg.Delivery.MaxBytes,
		PollInterval: cfg.Downloader.PollInterval,
	}
	return pipeline.New(pipeline.Config{
		MaxAttempts:    cfg.Downloader.MaxAttempts,
		AttemptTimeout: cfg.Downloader.AttemptTimeout,
		PollInterval:   cfg.Downloader.PollInterval,
		Throttle:       cfg.Progress.Throttle,
	}, pipeline.Deps{
		Workspace: ws,
		Launcher:  launcher,
		Builder:   builder,
		Gate:      gate,
		Counters:  counters,
	})
}

// Bootstrap builds the runtime for cfg. launcher nil selects real processes.
func Bootstrap(cfg config.AppConfig, launcher proc.Launcher) (*Runtime, error) {
	if launcher == nil {
		launcher = &proc.ExecLauncher{}
	}
	counters := stats.New()
	p, err := BuildPipeline(cfg, counters, launcher)
	if err != nil {
		return nil, err
	}
	outbox, err := delivery.NewOutbox(cfg.OutboxDir)
	if err != nil {
		return nil, fmt.Errorf("outbox: %w", err)
	}
	mgr := jobs.NewManager(p, outbox, jobs.Options{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		Retention:     cfg.Jobs.Retention,
	})

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewDirChecker("work_dir", cfg.WorkDir))
	hm.RegisterChecker(health.NewDirChecker("outbox_dir", cfg.OutboxDir))
	hm.RegisterChecker(health.NewBinaryChecker("downloader", cfg.Downloader.Bin))
	hm.RegisterChecker(health.NewBinaryChecker("transcoder", cfg.Transcoder.Bin))
	hm.RegisterChecker(health.NewFuncChecker("dispatcher", mgr.Accepting, "not accepting jobs"))

	proxies, err := middleware.ParseTrustedProxies(cfg.API.TrustedProxies)
	if err != nil {
		return nil, err
	}
	var tracing string
	if cfg.Telemetry.Enabled {
		tracing = apiTracerName
	}
	srv := api.New(mgr, counters, hm, api.Options{
		Token:           cfg.API.Token,
		SubmitRateLimit: cfg.API.SubmitRateLimit,
		SubmitWindow:    cfg.API.SubmitWindow,
		TracingService:  tracing,
		TrustedProxies:  proxies,
	})

	return &Runtime{
		Counters: counters,
		Launcher: launcher,
		Outbox:   outbox,
		Jobs:     mgr,
		Health:   hm,
		API:      srv,
	}, nil
}

// Apply pushes a reloaded config into the running graph. Jobs already
// running keep their pipeline; listen address and concurrency need a restart.
func (rt *Runtime) Apply(cfg config.AppConfig) error {
	p, err := BuildPipeline(cfg, rt.Counters, rt.Launcher)
	if err != nil {
		return err
	}
	rt.Jobs.SetRunner(p)
	rt.API.SetToken(cfg.API.Token)
	return nil
}
