// SPDX-License-Identifier: MIT

// Package jobs keeps the in-memory job registry and runs submitted jobs on a
// bounded number of concurrent slots.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/mediafetch/internal/delivery"
	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/pipeline"
	"github.com/ManuGH/mediafetch/internal/validate"
	"github.com/ManuGH/mediafetch/internal/ytdlp"
)

var (
	// ErrShuttingDown is returned by Submit after Shutdown.
	ErrShuttingDown = errors.New("jobs: manager is shutting down")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("jobs: invalid request")
)

const (
	DefaultMaxConcurrent = 4
	DefaultRetention     = time.Hour
	janitorInterval      = time.Minute
)

// Runner runs one job to completion. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, job *pipeline.Job, reporter pipeline.StatusReporter, deliverer pipeline.Deliverer) pipeline.Outcome
}

// locator is implemented by deliverers that can tell where an artifact went.
type locator interface {
	Destination(d pipeline.Delivery) string
}

// Request is one submission.
type Request struct {
	Source      string                  `json:"source"`
	Mode        string                  `json:"mode"`
	Title       string                  `json:"title,omitempty"`
	Performer   string                  `json:"performer,omitempty"`
	CallbackURL string                  `json:"callbackUrl,omitempty"`
	Reporter    pipeline.StatusReporter `json:"-"`
}

// View is the registry's public record of a job.
type View struct {
	pipeline.Snapshot
	Delivered string `json:"delivered,omitempty"`
}

type entry struct {
	job  *pipeline.Job
	done chan struct{}

	mu         sync.Mutex
	delivered  string
	finishedAt time.Time
}

// Options configure a Manager.
type Options struct {
	MaxConcurrent int
	Retention     time.Duration
	Now           func() time.Time
}

// Manager owns submitted jobs.
type Manager struct {
	runner    Runner
	deliverer pipeline.Deliverer
	sem       *semaphore.Weighted
	retention time.Duration
	now       func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

// NewManager creates a manager. deliverer may be nil.
func NewManager(runner Runner, deliverer pipeline.Deliverer, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:    runner,
		deliverer: deliverer,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		retention: opts.Retention,
		now:       opts.Now,
		baseCtx:   ctx,
		cancel:    cancel,
		entries:   make(map[string]*entry),
	}
}

// Submit validates req, registers a new job and schedules it.
func (m *Manager) Submit(req Request) (*pipeline.Job, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	mode, err := ytdlp.ParseMode(req.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.CallbackURL != "" {
		v := validate.New()
		v.URL("callbackUrl", req.CallbackURL, []string{"http", "https"})
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	job := pipeline.NewJob(req.Source, mode, pipeline.Meta{Title: req.Title, Performer: req.Performer})
	e := &entry{job: job, done: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	m.entries[job.ID] = e
	m.wg.Add(1)
	m.mu.Unlock()

	var reporters pipeline.Reporters
	if req.CallbackURL != "" {
		reporters = append(reporters, delivery.NewWebhook(req.CallbackURL, job.ID))
	}
	if req.Reporter != nil {
		reporters = append(reporters, req.Reporter)
	}

	go m.run(e, reporters)
	return job, nil
}

func (m *Manager) run(e *entry, reporters pipeline.Reporters) {
	defer m.wg.Done()
	defer close(e.done)

	ctx := log.ContextWithJobID(m.baseCtx, e.job.ID)
	logger := log.WithContext(ctx, log.WithComponent("jobs"))

	if err := m.sem.Acquire(ctx, 1); err != nil {
		// Shutdown before a slot freed up: the pipeline still runs so the job
		// reaches a terminal state, and fails fast on the cancelled context.
		logger.Warn().Err(err).Str(log.FieldEvent, "jobs.slot_unavailable").Msg("no slot before shutdown")
	} else {
		defer m.sem.Release(1)
	}

	var reporter pipeline.StatusReporter
	if len(reporters) > 0 {
		reporter = reporters
	}
	var deliverer pipeline.Deliverer
	if m.deliverer != nil {
		deliverer = &recordingDeliverer{next: m.deliverer, entry: e}
	}
	m.mu.RLock()
	runner := m.runner
	m.mu.RUnlock()
	out := runner.Run(ctx, e.job, reporter, deliverer)
	e.mu.Lock()
	e.finishedAt = m.now()
	e.mu.Unlock()
	logger.Debug().
		Str(log.FieldEvent, "jobs.finished").
		Str(log.FieldState, string(out.State)).
		Str(log.FieldKind, string(out.Kind)).
		Msg("dispatcher released job")
}

type recordingDeliverer struct {
	next  pipeline.Deliverer
	entry *entry
}

func (r *recordingDeliverer) Deliver(ctx context.Context, d pipeline.Delivery) error {
	if err := r.next.Deliver(ctx, d); err != nil {
		return err
	}
	loc := d.Path
	if l, ok := r.next.(locator); ok {
		loc = l.Destination(d)
	}
	r.entry.mu.Lock()
	r.entry.delivered = loc
	r.entry.mu.Unlock()
	return nil
}

// SetRunner replaces the runner for jobs scheduled from now on. Running
// jobs keep the runner they started with.
func (m *Manager) SetRunner(r Runner) {
	m.mu.Lock()
	m.runner = r
	m.mu.Unlock()
}

// Accepting reports whether Submit still takes new jobs.
func (m *Manager) Accepting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// Get returns the view of job id.
func (m *Manager) Get(id string) (View, bool) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return View{}, false
	}
	return e.view(), true
}

// List returns all known jobs, newest first.
func (m *Manager) List() []View {
	m.mu.RLock()
	views := make([]View, 0, len(m.entries))
	for _, e := range m.entries {
		views = append(views, e.view())
	}
	m.mu.RUnlock()
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.After(views[j].CreatedAt) })
	return views
}

func (e *entry) view() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return View{Snapshot: e.job.Snapshot(), Delivered: e.delivered}
}

// Wait blocks until job id is terminal or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (View, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return View{}, fmt.Errorf("jobs: unknown job %s", id)
	}
	select {
	case <-e.done:
		return e.view(), nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Sweep evicts terminal jobs that finished more than the retention window
// ago and returns how many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		e.mu.Lock()
		fin := e.finishedAt
		e.mu.Unlock()
		if fin.IsZero() || fin.After(cutoff) {
			continue
		}
		delete(m.entries, id)
		n++
	}
	return n
}

// RunJanitor sweeps periodically until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context) error {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				logger := log.WithComponent("jobs")
				logger.Debug().Int("evicted", n).Msg("expired jobs evicted")
			}
		}
	}
}

// Shutdown stops accepting jobs and waits for in-flight ones. When ctx ends
// first, running jobs are cancelled (their processes killed) and Shutdown
// still waits for them to reach a terminal state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
