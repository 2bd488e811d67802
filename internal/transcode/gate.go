// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcode re-encodes artifacts that exceed the delivery ceiling.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/mediafetch/internal/artifact"
	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/metrics"
	"github.com/ManuGH/mediafetch/internal/proc"
	"github.com/ManuGH/mediafetch/internal/telemetry"
	"github.com/ManuGH/mediafetch/internal/watchdog"
)

var (
	// ErrFailed means the re-encoder did not produce an output.
	ErrFailed = errors.New("transcode: re-encode failed")
	// ErrOversize means the output still exceeds the ceiling.
	ErrOversize = errors.New("transcode: output exceeds size ceiling")
)

// DefaultMaxBytes is the delivery ceiling (50 MiB).
const DefaultMaxBytes int64 = 50 << 20

// Target selects the re-encode profile.
type Target int

const (
	TargetVideo Target = iota
	TargetAudio
)

// Settings are the fixed re-encode parameters.
type Settings struct {
	Bin               string        `yaml:"bin"`
	MaxWidth          int           `yaml:"maxWidth"`
	Preset            string        `yaml:"preset"`
	CRF               int           `yaml:"crf"`
	AudioBitrate      string        `yaml:"audioBitrate"`
	AudioOnlyBitrate  string        `yaml:"audioOnlyBitrate"`
	Timeout           time.Duration `yaml:"timeout"`
	DiagnosticTailLen int           `yaml:"-"`
}

// DefaultSettings returns the stock profile.
func DefaultSettings() Settings {
	return Settings{
		Bin:              "ffmpeg",
		MaxWidth:         640,
		Preset:           "fast",
		CRF:              28,
		AudioBitrate:     "128k",
		AudioOnlyBitrate: "96k",
		Timeout:          15 * time.Minute,
	}
}

// Args builds the re-encoder command line.
func (s Settings) Args(in, out string, target Target) []string {
	args := []string{"-y", "-nostdin", "-hide_banner", "-i", in}
	if target == TargetAudio {
		return append(args, "-vn", "-c:a", "libmp3lame", "-b:a", s.AudioOnlyBitrate, out)
	}
	return append(args,
		"-vf", fmt.Sprintf("scale=w=%d:h=-2", s.MaxWidth),
		"-c:v", "libx264",
		"-preset", s.Preset,
		"-crf", strconv.Itoa(s.CRF),
		"-c:a", "aac",
		"-b:a", s.AudioBitrate,
		"-movflags", "+faststart",
		out,
	)
}

// OutputSuffix is appended to the job id to name the re-encoded file.
func OutputSuffix(target Target) string {
	if target == TargetAudio {
		return "_compressed.mp3"
	}
	return "_compressed.mp4"
}

// Gate passes artifacts at or below MaxBytes through unchanged and
// re-encodes larger ones exactly once.
type Gate struct {
	Launcher     proc.Launcher
	Settings     Settings
	MaxBytes     int64
	PollInterval time.Duration
	Clock        watchdog.Clock
}

// Result reports what Apply did.
type Result struct {
	Artifact   artifact.Artifact
	Transcoded bool
}

// Needed reports whether a is over the ceiling.
func (g *Gate) Needed(a artifact.Artifact) bool {
	return a.Size > g.maxBytes()
}

func (g *Gate) maxBytes() int64 {
	if g.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return g.MaxBytes
}

// Apply enforces the ceiling on a. The re-encoded file is written to out.
// On success the input file is removed immediately.
func (g *Gate) Apply(ctx context.Context, a artifact.Artifact, out string, target Target, logger zerolog.Logger) (Result, error) {
	if !g.Needed(a) {
		return Result{Artifact: a}, nil
	}

	ctx, span := telemetry.Tracer("mediafetch/transcode").Start(ctx, "transcode")
	span.SetAttributes(telemetry.TranscodeAttributes(g.Settings.Bin, a.Size)...)
	defer span.End()

	logger.Info().
		Str(log.FieldEvent, "transcode.start").
		Str("input", a.Path).
		Int64(log.FieldBytes, a.Size).
		Int64("ceiling", g.maxBytes()).
		Msg("artifact over ceiling, re-encoding")

	res, err := g.run(ctx, a, out, target, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int64(telemetry.TranscodeOutKey, res.Artifact.Size))
	return res, nil
}

func (g *Gate) run(ctx context.Context, a artifact.Artifact, out string, target Target, logger zerolog.Logger) (Result, error) {
	h, err := g.Launcher.Start(ctx, g.Settings.Bin, g.Settings.Args(a.Path, out, target))
	if err != nil {
		metrics.IncTranscode("failed")
		return Result{}, fmt.Errorf("%w: start: %v", ErrFailed, err)
	}
	defer func() { _ = h.Close() }()

	guard := watchdog.NewWithClock(g.Settings.Timeout, g.Clock)
	guard.Arm()
	if err := proc.Pump(ctx, h, g.PollInterval, guard, nil); err != nil {
		metrics.IncTranscode("failed")
		if ctx.Err() != nil {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrFailed, err)
	}

	code, err := h.Wait()
	if err != nil || code != 0 {
		metrics.IncTranscode("failed")
		logger.Warn().
			Str(log.FieldEvent, "transcode.failed").
			Int(log.FieldExitCode, code).
			Strs(log.FieldStderr, h.Diagnostics().Tail(g.tailLen())).
			Msg("re-encoder exited with error")
		return Result{}, fmt.Errorf("%w: exit code %d", ErrFailed, code)
	}

	encoded, err := artifact.Stat(out)
	if err != nil {
		metrics.IncTranscode("failed")
		return Result{}, fmt.Errorf("%w: output: %v", ErrFailed, err)
	}
	metrics.ObserveArtifactBytes("transcoded", encoded.Size)

	if encoded.Size > g.maxBytes() {
		metrics.IncTranscode("oversize")
		logger.Warn().
			Str(log.FieldEvent, "transcode.oversize").
			Int64(log.FieldBytes, encoded.Size).
			Msg("re-encoded output still over ceiling")
		return Result{}, fmt.Errorf("%w: %d > %d bytes", ErrOversize, encoded.Size, g.maxBytes())
	}

	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Str(log.FieldEvent, "transcode.remove_input_failed").Str(log.FieldPath, a.Path).Msg("failed to remove pre-transcode artifact")
	}
	metrics.IncTranscode("ok")
	logger.Info().
		Str(log.FieldEvent, "transcode.done").
		Int64(log.FieldBytes, encoded.Size).
		Msg("re-encode within ceiling")
	return Result{Artifact: encoded, Transcoded: true}, nil
}

func (g *Gate) tailLen() int {
	if g.Settings.DiagnosticTailLen > 0 {
		return g.Settings.DiagnosticTailLen
	}
	return 20
}
