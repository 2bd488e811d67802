// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package watchdog enforces a wall-clock budget on a running external process.
package watchdog

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned by Enforce once the budget has been exceeded.
var ErrTimeout = errors.New("watchdog: deadline exceeded")

type State int

const (
	StateIdle State = iota
	StateArmed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Clock is the time source used by a Guard.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Killer is the part of a process handle the guard needs.
type Killer interface {
	Kill() error
}

// Guard is a per-attempt deadline. It is checked on every poll tick and
// never blocks.
type Guard struct {
	mu      sync.Mutex
	budget  time.Duration
	clock   Clock
	started time.Time
	state   State
}

// New creates an unarmed guard with the given budget.
func New(budget time.Duration) *Guard {
	return NewWithClock(budget, nil)
}

// NewWithClock creates a guard with an explicit time source. A nil clock
// selects the wall clock.
func NewWithClock(budget time.Duration, c Clock) *Guard {
	if c == nil {
		c = realClock{}
	}
	return &Guard{budget: budget, clock: c}
}

// Arm starts (or restarts) the budget.
func (g *Guard) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = g.clock.Now()
	g.state = StateArmed
}

// Elapsed returns the time since Arm, or zero for an idle guard.
func (g *Guard) Elapsed() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateIdle {
		return 0
	}
	return g.clock.Now().Sub(g.started)
}

// Expired reports whether the budget has been exceeded. An idle guard or a
// non-positive budget never expires.
func (g *Guard) Expired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expiredLocked()
}

func (g *Guard) expiredLocked() bool {
	if g.state == StateTimedOut {
		return true
	}
	if g.state != StateArmed || g.budget <= 0 {
		return false
	}
	return g.clock.Now().Sub(g.started) > g.budget
}

// Enforce kills the process if the budget has been exceeded and returns an
// error wrapping ErrTimeout. A kill failure is joined to the returned error.
func (g *Guard) Enforce(k Killer) error {
	g.mu.Lock()
	if !g.expiredLocked() {
		g.mu.Unlock()
		return nil
	}
	elapsed := g.clock.Now().Sub(g.started)
	g.state = StateTimedOut
	g.mu.Unlock()

	err := fmt.Errorf("%w after %s (budget %s)", ErrTimeout, elapsed.Round(time.Millisecond), g.budget)
	if k != nil {
		if kerr := k.Kill(); kerr != nil {
			return errors.Join(err, fmt.Errorf("kill: %w", kerr))
		}
	}
	return err
}

// State returns the guard state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Budget returns the configured budget.
func (g *Guard) Budget() time.Duration { return g.budget }
