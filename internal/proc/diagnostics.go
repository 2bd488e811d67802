// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proc

import (
	"strings"
	"sync"
)

const defaultDiagnosticLines = 256

// DiagnosticLog is a thread-safe ring buffer holding the most recent
// diagnostic lines of one process run.
type DiagnosticLog struct {
	mu    sync.RWMutex
	lines []string
	head  int
	count int
}

// NewDiagnosticLog creates a DiagnosticLog with the specified capacity.
func NewDiagnosticLog(capacity int) *DiagnosticLog {
	if capacity < 1 {
		capacity = defaultDiagnosticLines
	}
	return &DiagnosticLog{lines: make([]string, capacity)}
}

// Add appends a line, evicting the oldest one when full.
func (d *DiagnosticLog) Add(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lines[d.head] = line
	d.head = (d.head + 1) % len(d.lines)
	if d.count < len(d.lines) {
		d.count++
	}
}

// Lines returns all retained lines in chronological order.
func (d *DiagnosticLog) Lines() []string {
	return d.Tail(len(d.lines))
}

// Tail returns the last n lines in chronological order.
func (d *DiagnosticLog) Tail(n int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if n > d.count {
		n = d.count
	}
	if n <= 0 {
		return nil
	}

	out := make([]string, 0, n)
	start := (d.head - n + len(d.lines)) % len(d.lines)
	for i := 0; i < n; i++ {
		out = append(out, d.lines[(start+i)%len(d.lines)])
	}
	return out
}

// Text joins all retained lines with newlines.
func (d *DiagnosticLog) Text() string {
	return strings.Join(d.Lines(), "\n")
}

// Len reports how many lines are retained.
func (d *DiagnosticLog) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}
