// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediafetch/internal/log"
)

// Stage texts pushed to the status channel.
const (
	StageDownloading = "Downloading..."
	StageDownloaded  = "Downloaded. Processing file..."
	StageTranscoding = "Large file, transcoding..."
	StageUploading   = "Uploading..."
	StageDone        = "Done."
)

// Status renders "<stage>[ (try X/Y)][ [N%]] | <counters>". Attempt info is
// shown only when both numbers are positive; counters may be empty.
func Status(stage string, attempt, maxAttempts int, percent, counters string) string {
	var b strings.Builder
	b.WriteString(stage)
	if attempt > 0 && maxAttempts > 0 {
		b.WriteString(" (try ")
		b.WriteString(strconv.Itoa(attempt))
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(maxAttempts))
		b.WriteByte(')')
	}
	if percent != "" {
		b.WriteString(" [")
		b.WriteString(percent)
		b.WriteString("%]")
	}
	if counters != "" {
		b.WriteString(" | ")
		b.WriteString(counters)
	}
	return b.String()
}

// StatusReporter receives staged status strings for one job.
type StatusReporter interface {
	Report(ctx context.Context, text string) error
}

// ReporterFunc adapts a function to StatusReporter.
type ReporterFunc func(ctx context.Context, text string) error

func (f ReporterFunc) Report(ctx context.Context, text string) error { return f(ctx, text) }

// Reporters fans a status out to several reporters. Every reporter is tried.
type Reporters []StatusReporter

func (rs Reporters) Report(ctx context.Context, text string) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// bestEffort runs fn, logging its error or panic. Failures here never reach
// the job.
func bestEffort(logger zerolog.Logger, op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Str(log.FieldEvent, op+".panic").Msgf("best-effort call panicked: %v", r)
		}
	}()
	if err := fn(); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, op+".failed").Msg("best-effort call failed")
	}
}
