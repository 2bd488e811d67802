// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/mediafetch/internal/jobs"
	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/pipeline"
)

const maxSubmitBody = 64 << 10

// SubmitResponse is returned with 202 Accepted.
type SubmitResponse struct {
	ID    string         `json:"id"`
	State pipeline.State `json:"state"`
}

// StatsResponse mirrors the counters with their rendered text.
type StatsResponse struct {
	Success int64  `json:"success"`
	Failure int64  `json:"failures"`
	Text    string `json:"text"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	var req jobs.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode body: %w", err))
		return
	}

	job, err := s.jobs.Submit(req)
	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		writeBadRequest(w, err)
		return
	case errors.Is(err, jobs.ErrShuttingDown):
		writeServiceUnavailable(w, err)
		return
	case err != nil:
		logger.Error().Err(err).Str(log.FieldEvent, "job.submit_failed").Msg("submit failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
		return
	}

	logger.Info().
		Str(log.FieldEvent, "job.accepted").
		Str(log.FieldJobID, job.ID).
		Str(log.FieldMode, string(job.Mode)).
		Msg("job accepted")
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, SubmitResponse{ID: job.ID, State: job.State()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.List())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.stats.Snapshot()
	writeJSON(w, http.StatusOK, StatsResponse{Success: snap.Success, Failure: snap.Failure, Text: snap.Text()})
}
