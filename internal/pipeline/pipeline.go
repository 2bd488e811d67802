// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/mediafetch/internal/artifact"
	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/metrics"
	"github.com/ManuGH/mediafetch/internal/proc"
	"github.com/ManuGH/mediafetch/internal/telemetry"
	"github.com/ManuGH/mediafetch/internal/transcode"
	"github.com/ManuGH/mediafetch/internal/watchdog"
	"github.com/ManuGH/mediafetch/internal/ytdlp"
)

const tracerName = "mediafetch/pipeline"

// Defaults of Config.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 300 * time.Second
)

// Config holds the fixed per-job limits.
type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	PollInterval   time.Duration
	Throttle       time.Duration
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: DefaultAttemptTimeout,
		PollInterval:   proc.DefaultPollInterval,
		Throttle:       time.Second,
	}
}

// Counters is the process-wide success/failure tally.
type Counters interface {
	Succeeded()
	Failed()
	Text() string
}

// Delivery describes the artifact handed to the delivery channel.
type Delivery struct {
	JobID string
	Path  string
	Size  int64
	Mode  Mode
	Meta  Meta
}

// Deliverer is the delivery channel. It is called exactly once per
// successful job, before the job's files are removed.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Workspace *artifact.Workspace
	Launcher  proc.Launcher
	Builder   *ytdlp.Builder
	Gate      *transcode.Gate
	Counters  Counters
	// Clock drives the watchdog and the progress throttle. Nil is the wall clock.
	Clock watchdog.Clock
}

// Pipeline runs jobs. It is safe for concurrent use; jobs share nothing but
// the workspace directory (disjoint per id) and the counters.
type Pipeline struct {
	cfg       Config
	workspace *artifact.Workspace
	download  *RetryController
	gate      *transcode.Gate
	counters  Counters
	now       func() time.Time
}

// Outcome is the terminal result of Run.
type Outcome struct {
	State    State
	Kind     Kind
	Message  string
	Artifact artifact.Artifact
	Err      error
}

// New validates deps and builds a pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Workspace == nil:
		return nil, errors.New("pipeline: workspace is required")
	case deps.Launcher == nil:
		return nil, errors.New("pipeline: launcher is required")
	case deps.Builder == nil:
		return nil, errors.New("pipeline: downloader builder is required")
	case deps.Gate == nil:
		return nil, errors.New("pipeline: transcode gate is required")
	case deps.Counters == nil:
		return nil, errors.New("pipeline: counters are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = proc.DefaultPollInterval
	}

	now := time.Now
	if deps.Clock != nil {
		now = deps.Clock.Now
	}
	return &Pipeline{
		cfg:       cfg,
		workspace: deps.Workspace,
		download: &RetryController{
			Launcher:       deps.Launcher,
			Builder:        deps.Builder,
			MaxAttempts:    cfg.MaxAttempts,
			AttemptTimeout: cfg.AttemptTimeout,
			PollInterval:   cfg.PollInterval,
			Throttle:       cfg.Throttle,
			Clock:          deps.Clock,
		},
		gate:     deps.Gate,
		counters: deps.Counters,
		now:      now,
	}, nil
}

// Counters returns the tally the pipeline updates.
func (p *Pipeline) Counters() Counters { return p.counters }

// Run drives job to a terminal state. It never panics and always removes
// the job's files before returning.
func (p *Pipeline) Run(ctx context.Context, job *Job, reporter StatusReporter, deliverer Deliverer) (out Outcome) {
	ctx = log.ContextWithJobID(ctx, job.ID)
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "job",
		trace.WithAttributes(telemetry.JobAttributes(job.ID, string(job.Mode), !ytdlp.IsURL(job.Source))...))
	defer span.End()

	logger := log.WithContext(ctx, log.WithComponent("pipeline"))
	logger.Info().
		Str(log.FieldEvent, "job.accepted").
		Str(log.FieldSource, job.Source).
		Str(log.FieldMode, string(job.Mode)).
		Msg("job started")

	done := metrics.JobStarted()
	defer done()

	started := p.now()
	guard := p.workspace.Guard(job.ID, logger)

	var (
		a   artifact.Artifact
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fail(KindUnexpected, fmt.Errorf("panic: %v", r))
			logger.Error().
				Str(log.FieldEvent, "job.panic").
				Bytes("stack", debug.Stack()).
				Msgf("recovered panic: %v", r)
		}
		out = p.finish(ctx, job, guard, reporter, err, started, logger)
		if err == nil {
			out.Artifact = a
		}
		if out.Kind != "" {
			span.SetAttributes(telemetry.FailureAttributes(string(out.Kind))...)
			span.SetStatus(codes.Error, out.Err.Error())
		}
	}()

	a, err = p.execute(ctx, job, reporter, deliverer, logger)
	return out
}

func (p *Pipeline) execute(ctx context.Context, job *Job, reporter StatusReporter, deliverer Deliverer, logger zerolog.Logger) (artifact.Artifact, error) {
	report := func(stage string, attempt, maxAttempts int, percent string) {
		p.report(ctx, job, reporter, Status(stage, attempt, maxAttempts, percent, p.counters.Text()), logger)
	}

	cmd, err := p.download.Download(ctx, job, report, logger)
	if err != nil {
		return artifact.Artifact{}, err
	}
	job.setState(StateDownloaded)
	report(StageDownloaded, 0, 0, "")

	a, err := p.workspace.Resolve(job.ID, cmd.ExpectedPath, logger)
	if err != nil {
		return artifact.Artifact{}, fail(KindMissingArtifact, err)
	}
	metrics.ObserveArtifactBytes("downloaded", a.Size)
	logger.Info().
		Str(log.FieldEvent, "artifact.resolved").
		Str(log.FieldPath, a.Path).
		Int64(log.FieldBytes, a.Size).
		Msg("artifact located")

	if p.gate.Needed(a) {
		job.setState(StateTranscoding)
		report(StageTranscoding, 0, 0, "")
		target := transcode.TargetVideo
		if job.Mode == ModeAudio {
			target = transcode.TargetAudio
		}
		res, err := p.gate.Apply(ctx, a, p.workspace.Path(job.ID, transcode.OutputSuffix(target)), target, logger)
		if err != nil {
			switch {
			case errors.Is(err, transcode.ErrOversize):
				return artifact.Artifact{}, fail(KindOversizeArtifact, err)
			case errors.Is(err, transcode.ErrFailed):
				return artifact.Artifact{}, fail(KindTranscodeFailure, err)
			default:
				return artifact.Artifact{}, fail(KindUnexpected, err)
			}
		}
		a = res.Artifact
	}
	job.setArtifact(a.Path, a.Size)

	job.setState(StateDelivering)
	report(StageUploading, 0, 0, "")
	if deliverer != nil {
		if err := deliverer.Deliver(ctx, Delivery{JobID: job.ID, Path: a.Path, Size: a.Size, Mode: job.Mode, Meta: job.Meta}); err != nil {
			return artifact.Artifact{}, fail(KindUnexpected, fmt.Errorf("deliver: %w", err))
		}
	}
	return a, nil
}

// finish performs the single terminal transition: counters, job state,
// cleanup, final status.
func (p *Pipeline) finish(ctx context.Context, job *Job, guard *artifact.CleanupGuard, reporter StatusReporter, err error, started time.Time, logger zerolog.Logger) Outcome {
	out := Outcome{State: StateSucceeded, Err: err}
	if err != nil {
		out.State = StateFailed
		out.Kind = KindOf(err)
		out.Message = UserMessage(out.Kind)
		p.counters.Failed()
	} else {
		p.counters.Succeeded()
	}
	elapsed := p.now().Sub(started)
	metrics.RecordJobFinished(err == nil, string(out.Kind), elapsed)
	job.finish(out.State, out.Kind, p.now())

	removed := guard.Release()

	stage := StageDone
	if err != nil {
		stage = out.Message
	}
	// The final status must go out even when the job context was cancelled.
	p.report(context.WithoutCancel(ctx), job, reporter, Status(stage, 0, 0, "", p.counters.Text()), logger)

	ev := logger.Info()
	if err != nil {
		ev = logger.Warn().Err(err).Str(log.FieldKind, string(out.Kind))
	}
	ev.Str(log.FieldEvent, "job.finished").
		Str(log.FieldState, string(out.State)).
		Dur("elapsed", elapsed).
		Int("files_removed", removed).
		Msg("job finished")
	return out
}

func (p *Pipeline) report(ctx context.Context, job *Job, reporter StatusReporter, text string, logger zerolog.Logger) {
	job.setStatus(text)
	if reporter == nil {
		return
	}
	bestEffort(logger, "status.report", func() error { return reporter.Report(ctx, text) })
}
