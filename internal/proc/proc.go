// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package proc runs external tools (downloader, re-encoder) and exposes their
// diagnostic stream as a poll-based line reader.
package proc

import (
	"context"
	"time"
)

// ReadResult classifies the outcome of one ReadLine poll.
type ReadResult int

const (
	// Line means a diagnostic line was read.
	Line ReadResult = iota
	// NoData means nothing arrived within the poll interval; the caller should
	// run its watchdog checks and poll again.
	NoData
	// Closed means the stream is exhausted and the process has exited.
	Closed
)

func (r ReadResult) String() string {
	switch r {
	case Line:
		return "line"
	case NoData:
		return "no_data"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle is a running external process.
//
// ReadLine must be called from a single goroutine. Every line it returns is
// also appended to Diagnostics().
type Handle interface {
	ReadLine(pollTimeout time.Duration) (string, ReadResult)
	// Kill force-terminates the whole process tree and closes its streams.
	Kill() error
	// Stop sends SIGTERM and escalates to SIGKILL after grace.
	Stop(grace time.Duration) error
	// Wait blocks until the process exits and returns its exit code
	// (-1 when it was terminated by a signal).
	Wait() (int, error)
	Diagnostics() *DiagnosticLog
	PID() int
	// Close releases the stream reader. Safe to call more than once.
	Close() error
}

// Launcher starts external processes.
type Launcher interface {
	Start(ctx context.Context, name string, args []string) (Handle, error)
}
