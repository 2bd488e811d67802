// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline drives one acquisition job from download to delivery.
package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/mediafetch/internal/ytdlp"
)

// State is the job lifecycle.
type State string

const (
	StatePending     State = "PENDING"
	StateRunning     State = "RUNNING"
	StateDownloaded  State = "DOWNLOADED"
	StateTranscoding State = "TRANSCODING"
	StateDelivering  State = "DELIVERING"
	StateSucceeded   State = "SUCCEEDED"
	StateFailed      State = "FAILED"
)

// IsTerminal returns true for Succeeded and Failed.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Mode aliases the downloader mode so callers need not import ytdlp.
type Mode = ytdlp.Mode

const (
	ModeVideo = ytdlp.ModeVideo
	ModeAudio = ytdlp.ModeAudio
)

// Meta is optional delivery metadata.
type Meta struct {
	Title     string `json:"title,omitempty"`
	Performer string `json:"performer,omitempty"`
}

// Job is one acquisition request. Identity fields are immutable; progress
// fields are written only by the pipeline running the job.
type Job struct {
	ID        string
	Source    string
	Mode      Mode
	Meta      Meta
	CreatedAt time.Time

	mu         sync.RWMutex
	state      State
	attempt    int
	kind       Kind
	status     string
	artifact   string
	size       int64
	finishedAt time.Time
}

// NewJob creates a pending job with a fresh id.
func NewJob(source string, mode Mode, meta Meta) *Job {
	if mode == "" {
		mode = ModeVideo
	}
	return &Job{
		ID:        uuid.NewString(),
		Source:    strings.TrimSpace(source),
		Mode:      mode,
		Meta:      meta,
		CreatedAt: time.Now(),
		state:     StatePending,
	}
}

// Snapshot is a read-only copy of a job.
type Snapshot struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Mode       Mode      `json:"mode"`
	Meta       Meta      `json:"meta"`
	State      State     `json:"state"`
	Attempt    int       `json:"attempt"`
	Kind       Kind      `json:"failureKind,omitempty"`
	Message    string    `json:"message,omitempty"`
	Status     string    `json:"status"`
	Artifact   string    `json:"artifact,omitempty"`
	Bytes      int64     `json:"bytes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// Snapshot returns the current view of the job.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := Snapshot{
		ID:         j.ID,
		Source:     j.Source,
		Mode:       j.Mode,
		Meta:       j.Meta,
		State:      j.state,
		Attempt:    j.attempt,
		Kind:       j.kind,
		Status:     j.status,
		Artifact:   j.artifact,
		Bytes:      j.size,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.finishedAt,
	}
	if j.kind != "" {
		s.Message = UserMessage(j.kind)
	}
	return s
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// FinishedAt is zero until the job is terminal.
func (j *Job) FinishedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finishedAt
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) setAttempt(n int) {
	j.mu.Lock()
	j.attempt = n
	j.state = StateRunning
	j.mu.Unlock()
}

func (j *Job) setStatus(text string) {
	j.mu.Lock()
	j.status = text
	j.mu.Unlock()
}

func (j *Job) setArtifact(path string, size int64) {
	j.mu.Lock()
	j.artifact, j.size = path, size
	j.mu.Unlock()
}

func (j *Job) finish(s State, kind Kind, at time.Time) {
	j.mu.Lock()
	j.state, j.kind, j.finishedAt = s, kind, at
	j.mu.Unlock()
}
