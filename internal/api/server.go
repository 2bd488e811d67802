// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api provides the HTTP surface for submitting and inspecting jobs.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/mediafetch/internal/api/middleware"
	"github.com/ManuGH/mediafetch/internal/health"
	"github.com/ManuGH/mediafetch/internal/jobs"
	"github.com/ManuGH/mediafetch/internal/pipeline"
	"github.com/ManuGH/mediafetch/internal/stats"
)

// JobService is the slice of the dispatcher the API needs.
type JobService interface {
	Submit(req jobs.Request) (*pipeline.Job, error)
	Get(id string) (jobs.View, bool)
	List() []jobs.View
}

// StatsSource reports job tallies.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// Options configure the server.
type Options struct {
	Token           string
	SubmitRateLimit int
	SubmitWindow    time.Duration
	TracingService  string
	TrustedProxies  middleware.TrustedProxies
}

// Server serves the job API.
type Server struct {
	jobs   JobService
	stats  StatsSource
	health *health.Manager

	mu    sync.RWMutex
	token string

	opts Options
}

// New creates a server. health may be nil.
func New(js JobService, st StatsSource, hm *health.Manager, opts Options) *Server {
	if opts.SubmitRateLimit <= 0 {
		opts.SubmitRateLimit = 30
	}
	if opts.SubmitWindow <= 0 {
		opts.SubmitWindow = time.Minute
	}
	if hm == nil {
		hm = health.NewManager("")
	}
	return &Server{jobs: js, stats: st, health: hm, token: opts.Token, opts: opts}
}

// SetToken swaps the API token, e.g. after a config reload.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Server) currentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.opts.TracingService,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(middleware.SubmitRateLimit(s.opts.SubmitRateLimit, s.opts.SubmitWindow, s.opts.TrustedProxies)).
			Post("/jobs", s.handleSubmit)
		r.Get("/jobs", s.handleList)
		r.Get("/jobs/{id}", s.handleGet)
		r.Get("/stats", s.handleStats)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w) })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed"})
	})
	return r
}
