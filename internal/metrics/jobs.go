// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of the acquisition pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafetch_jobs_total",
		Help: "Finished jobs by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	jobFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafetch_job_failures_total",
		Help: "Failed jobs by failure kind",
	}, []string{"kind"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediafetch_job_duration_seconds",
		Help:    "Wall-clock duration of a job from acceptance to terminal state",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800},
	}, []string{"outcome"})

	jobsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediafetch_jobs_inflight",
		Help: "Jobs currently running",
	})

	downloadAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafetch_download_attempts_total",
		Help: "Downloader invocations by result",
	}, []string{"result"}) // result=ok|exit_nonzero|timeout|start_error|cancelled

	transcodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafetch_transcodes_total",
		Help: "Re-encode attempts by result",
	}, []string{"result"}) // result=ok|failed|oversize

	artifactBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediafetch_artifact_bytes",
		Help:    "Size of resolved artifacts by stage",
		Buckets: prometheus.ExponentialBuckets(1<<20, 2, 10), // 1MiB .. 512MiB
	}, []string{"stage"}) // stage=downloaded|transcoded

	progressUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafetch_progress_updates_total",
		Help: "Progress samples by throttle decision",
	}, []string{"result"}) // result=surfaced|throttled|unchanged

	cleanupRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafetch_cleanup_removed_total",
		Help: "Temporary file removals by result",
	}, []string{"result"}) // result=ok|error
)

// RecordJobFinished records the terminal transition of a job. kind is empty on success.
func RecordJobFinished(success bool, kind string, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
		jobFailures.WithLabelValues(kind).Inc()
	}
	jobsTotal.WithLabelValues(outcome).Inc()
	jobDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// JobStarted increments the in-flight gauge and returns the matching decrement.
func JobStarted() func() {
	jobsInflight.Inc()
	return jobsInflight.Dec
}

// IncDownloadAttempt records one downloader invocation.
func IncDownloadAttempt(result string) {
	downloadAttempts.WithLabelValues(result).Inc()
}

// IncTranscode records one re-encode attempt.
func IncTranscode(result string) {
	transcodesTotal.WithLabelValues(result).Inc()
}

// ObserveArtifactBytes records the size of an artifact at a pipeline stage.
func ObserveArtifactBytes(stage string, size int64) {
	artifactBytes.WithLabelValues(stage).Observe(float64(size))
}

// IncProgressUpdate records a throttle decision of the progress monitor.
func IncProgressUpdate(result string) {
	progressUpdates.WithLabelValues(result).Inc()
}

// IncCleanupRemoved records the outcome of one temporary-file removal.
func IncCleanupRemoved(result string) {
	cleanupRemoved.WithLabelValues(result).Inc()
}
