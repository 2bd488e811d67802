// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/metrics"
	"github.com/ManuGH/mediafetch/internal/proc"
	"github.com/ManuGH/mediafetch/internal/progress"
	"github.com/ManuGH/mediafetch/internal/telemetry"
	"github.com/ManuGH/mediafetch/internal/watchdog"
	"github.com/ManuGH/mediafetch/internal/ytdlp"
)

const stderrTailLines = 20

// RetryController runs up to MaxAttempts downloader invocations. Only a
// non-zero exit is retried, immediately and without backoff.
type RetryController struct {
	Launcher       proc.Launcher
	Builder        *ytdlp.Builder
	MaxAttempts    int
	AttemptTimeout time.Duration
	PollInterval   time.Duration
	Throttle       time.Duration
	Clock          watchdog.Clock
}

// progressFunc surfaces one status update for the running attempt.
type progressFunc func(stage string, attempt, maxAttempts int, percent string)

// Download runs the attempt loop for job and returns the command of the
// successful attempt. Errors are *Failure values.
func (r *RetryController) Download(ctx context.Context, job *Job, report progressFunc, logger zerolog.Logger) (ytdlp.Command, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	cmd := r.Builder.Build(ytdlp.Request{ID: job.ID, Source: job.Source, Mode: job.Mode})
	if cmd.MissingCookieFile != "" {
		logger.Warn().
			Str(log.FieldEvent, "cookies.missing").
			Str(log.FieldPath, cmd.MissingCookieFile).
			Msg("cookie profile not found, continuing without cookies")
	}

	var lastErrorText string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job.setAttempt(attempt)
		report(StageDownloading, attempt, maxAttempts, "")

		alog := logger.With().Int(log.FieldAttempt, attempt).Logger()
		alog.Info().
			Str(log.FieldEvent, "attempt.start").
			Strs("args", cmd.Args).
			Msgf("starting downloader (attempt %d/%d)", attempt, maxAttempts)

		code, diag, err := r.attempt(ctx, cmd, attempt, maxAttempts, report, alog)
		if err != nil {
			return cmd, err
		}
		if code == 0 {
			metrics.IncDownloadAttempt("ok")
			alog.Info().Str(log.FieldEvent, "attempt.ok").Msg("download finished")
			return cmd, nil
		}

		metrics.IncDownloadAttempt("exit_nonzero")
		lastErrorText = diag.Text()
		alog.Warn().
			Str(log.FieldEvent, "attempt.failed").
			Int(log.FieldExitCode, code).
			Strs(log.FieldStderr, diag.Tail(stderrTailLines)).
			Msg("downloader exited with error")

		if attempt == maxAttempts {
			kind := Classify(lastErrorText)
			return cmd, fail(kind, fmt.Errorf("downloader exit code %d after %d attempts", code, maxAttempts))
		}
	}
	return cmd, fail(KindUnexpected, errors.New("attempt loop exhausted"))
}

// attempt runs one downloader invocation to completion. A non-nil error is
// terminal for the job.
func (r *RetryController) attempt(ctx context.Context, cmd ytdlp.Command, attempt, maxAttempts int, report progressFunc, logger zerolog.Logger) (int, *proc.DiagnosticLog, error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "download.attempt",
		trace.WithAttributes(telemetry.AttemptAttributes(attempt, maxAttempts)...))
	defer span.End()

	h, err := r.Launcher.Start(ctx, cmd.Bin, cmd.Args)
	if err != nil {
		metrics.IncDownloadAttempt("start_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "start failed")
		return 0, nil, fail(KindUnexpected, fmt.Errorf("start downloader: %w", err))
	}
	defer func() { _ = h.Close() }()

	var now func() time.Time
	if r.Clock != nil {
		now = r.Clock.Now
	}
	monitor := progress.NewMonitor(r.Throttle, now)
	guard := watchdog.NewWithClock(r.AttemptTimeout, r.Clock)
	guard.Arm()

	err = proc.Pump(ctx, h, r.PollInterval, guard, func(line string) {
		if s, ok := monitor.Observe(line); ok {
			report(StageDownloading, attempt, maxAttempts, s.Text)
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, watchdog.ErrTimeout) {
			metrics.IncDownloadAttempt("timeout")
			logger.Warn().
				Str(log.FieldEvent, "job.timeout").
				Dur("budget", r.AttemptTimeout).
				Strs(log.FieldStderr, h.Diagnostics().Tail(stderrTailLines)).
				Msg("downloader exceeded deadline, killed")
			return 0, h.Diagnostics(), fail(KindTimeout, err)
		}
		metrics.IncDownloadAttempt("cancelled")
		return 0, h.Diagnostics(), fail(KindUnexpected, err)
	}

	code, err := h.Wait()
	span.SetAttributes(attribute.Int(telemetry.ExitCodeKey, code))
	if err != nil {
		metrics.IncDownloadAttempt("wait_error")
		return 0, h.Diagnostics(), fail(KindUnexpected, fmt.Errorf("wait downloader: %w", err))
	}
	return code, h.Diagnostics(), nil
}
