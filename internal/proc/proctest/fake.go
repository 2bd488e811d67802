// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package proctest provides a scripted proc.Launcher for pipeline tests.
package proctest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/mediafetch/internal/proc"
)

// Script describes what one started process does.
type Script struct {
	// Lines are emitted on the diagnostic stream, one per ReadLine call.
	Lines []string
	// ExitCode is reported once all lines have been read.
	ExitCode int
	// Hang keeps the process alive (NoData forever) until killed.
	Hang bool
	// OnStart runs synchronously when the process is started, e.g. to
	// materialise output files. A non-nil error fails Start.
	OnStart func(args []string) error
	// Panic makes Start panic with the given value.
	Panic any
}

// Invocation records one Start call.
type Invocation struct {
	Name string
	Args []string
}

// Launcher hands out Scripts in order. When the scripts run out the last one
// is reused.
type Launcher struct {
	mu          sync.Mutex
	scripts     []Script
	invocations []Invocation
	handles     []*Handle
}

var _ proc.Launcher = (*Launcher)(nil)

// NewLauncher creates a Launcher playing the given scripts.
func NewLauncher(scripts ...Script) *Launcher {
	return &Launcher{scripts: scripts}
}

// Start implements proc.Launcher.
func (l *Launcher) Start(ctx context.Context, name string, args []string) (proc.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	idx := len(l.invocations)
	l.invocations = append(l.invocations, Invocation{Name: name, Args: append([]string(nil), args...)})
	var s Script
	switch {
	case len(l.scripts) == 0:
	case idx < len(l.scripts):
		s = l.scripts[idx]
	default:
		s = l.scripts[len(l.scripts)-1]
	}
	l.mu.Unlock()

	if s.Panic != nil {
		panic(s.Panic)
	}
	if s.OnStart != nil {
		if err := s.OnStart(args); err != nil {
			return nil, err
		}
	}

	h := &Handle{script: s, diag: proc.NewDiagnosticLog(0), killed: make(chan struct{})}
	l.mu.Lock()
	l.handles = append(l.handles, h)
	l.mu.Unlock()
	return h, nil
}

// Invocations returns a copy of all recorded Start calls.
func (l *Launcher) Invocations() []Invocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Invocation(nil), l.invocations...)
}

// Handles returns the handles created so far.
func (l *Launcher) Handles() []*Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Handle(nil), l.handles...)
}

// Handle is a scripted proc.Handle.
type Handle struct {
	script Script
	diag   *proc.DiagnosticLog

	mu       sync.Mutex
	next     int
	killed   chan struct{}
	killOnce sync.Once
	closed   bool
}

var _ proc.Handle = (*Handle)(nil)

// ReadLine emits the next scripted line. For hanging scripts it sleeps for a
// small slice of the poll interval so that wall-clock watchdogs advance.
func (h *Handle) ReadLine(pollTimeout time.Duration) (string, proc.ReadResult) {
	h.mu.Lock()
	if h.next < len(h.script.Lines) {
		line := h.script.Lines[h.next]
		h.next++
		h.mu.Unlock()
		h.diag.Add(line)
		return line, proc.Line
	}
	h.mu.Unlock()

	if !h.script.Hang || h.Killed() {
		return "", proc.Closed
	}

	wait := pollTimeout
	if wait > 5*time.Millisecond {
		wait = 5 * time.Millisecond
	}
	select {
	case <-h.killed:
		return "", proc.Closed
	case <-time.After(wait):
		return "", proc.NoData
	}
}

// Kill marks the process as killed.
func (h *Handle) Kill() error {
	h.killOnce.Do(func() { close(h.killed) })
	return nil
}

// Stop behaves like Kill.
func (h *Handle) Stop(time.Duration) error { return h.Kill() }

// Wait returns the scripted exit code, or -1 when killed.
func (h *Handle) Wait() (int, error) {
	if h.Killed() {
		return -1, nil
	}
	if h.script.Hang {
		return 0, errors.New("proctest: Wait on a hanging process that was never killed")
	}
	return h.script.ExitCode, nil
}

// Diagnostics implements proc.Handle.
func (h *Handle) Diagnostics() *proc.DiagnosticLog { return h.diag }

// PID implements proc.Handle.
func (h *Handle) PID() int { return 4242 }

// Close implements proc.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

// Killed reports whether Kill or Stop was called.
func (h *Handle) Killed() bool {
	select {
	case <-h.killed:
		return true
	default:
		return false
	}
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
