// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/mediafetch/internal/daemon"
	"github.com/ManuGH/mediafetch/internal/delivery"
	"github.com/ManuGH/mediafetch/internal/pipeline"
	"github.com/ManuGH/mediafetch/internal/stats"
)

// errJobFailed signals a failed job after its message was already printed.
var errJobFailed = errors.New("job failed")

type fetchOptions struct {
	audio     bool
	title     string
	performer string
}

func newFetchCmd(configPath *string) *cobra.Command {
	var opts fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch <url-or-query>",
		Short: "Fetch one item in the foreground and copy it to the outbox",
		Long: `Fetch downloads a single URL or search query, prints each status
update on its own line and copies the result into the outbox directory.
The exit code is non-zero when the job fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, *configPath, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.audio, "audio", false, "extract audio (mp3) instead of video")
	cmd.Flags().StringVar(&opts.title, "title", "", "title metadata for delivery")
	cmd.Flags().StringVar(&opts.performer, "performer", "", "performer metadata for delivery")
	return cmd
}

func runFetch(cmd *cobra.Command, configPath, source string, opts fetchOptions) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	counters := stats.New()
	p, err := daemon.BuildPipeline(cfg, counters, newLauncher())
	if err != nil {
		return err
	}
	outbox, err := delivery.NewOutbox(cfg.OutboxDir)
	if err != nil {
		return err
	}

	mode := pipeline.ModeVideo
	if opts.audio {
		mode = pipeline.ModeAudio
	}
	job := pipeline.NewJob(source, mode, pipeline.Meta{Title: opts.title, Performer: opts.performer})
	if job.Source == "" {
		return errors.New("source must not be empty")
	}

	out := cmd.OutOrStdout()
	outcome := p.Run(ctx, job, delivery.NewWriter(out), outbox)
	if outcome.State != pipeline.StateSucceeded {
		cmd.SilenceErrors = true
		return fmt.Errorf("%w: %s", errJobFailed, outcome.Kind)
	}
	fmt.Fprintf(out, "delivered: %s\n", outbox.Destination(pipeline.Delivery{JobID: job.ID, Path: outcome.Artifact.Path, Mode: job.Mode}))
	return nil
}
