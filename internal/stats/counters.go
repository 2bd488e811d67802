// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stats keeps the process-wide success and failure tallies.
package stats

import (
	"fmt"
	"sync/atomic"
)

// Counters are safe for concurrent increment from many jobs.
type Counters struct {
	success atomic.Int64
	failure atomic.Int64
}

// New returns zeroed counters.
func New() *Counters { return &Counters{} }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failures"`
}

// Succeeded records one successful job.
func (c *Counters) Succeeded() { c.success.Add(1) }

// Failed records one failed job.
func (c *Counters) Failed() { c.failure.Add(1) }

// Snapshot returns the current values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{Success: c.success.Load(), Failure: c.failure.Load()}
}

// Text renders the counters for status lines.
func (s Snapshot) Text() string {
	return fmt.Sprintf("success: %d, failures: %d", s.Success, s.Failure)
}

// Text renders the current counters.
func (c *Counters) Text() string { return c.Snapshot().Text() }
