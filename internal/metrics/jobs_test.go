// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordJobFinished(t *testing.T) {
	beforeOK := testutil.ToFloat64(jobsTotal.WithLabelValues("success"))
	beforeFail := testutil.ToFloat64(jobsTotal.WithLabelValues("failure"))
	beforeKind := testutil.ToFloat64(jobFailures.WithLabelValues("timeout"))

	RecordJobFinished(true, "", 2*time.Second)
	RecordJobFinished(false, "timeout", 300*time.Second)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(jobsTotal.WithLabelValues("success")))
	assert.Equal(t, beforeFail+1, testutil.ToFloat64(jobsTotal.WithLabelValues("failure")))
	assert.Equal(t, beforeKind+1, testutil.ToFloat64(jobFailures.WithLabelValues("timeout")))
}

func TestJobStarted_GaugeBalances(t *testing.T) {
	before := testutil.ToFloat64(jobsInflight)
	done := JobStarted()
	assert.Equal(t, before+1, testutil.ToFloat64(jobsInflight))
	done()
	assert.Equal(t, before, testutil.ToFloat64(jobsInflight))
}

func TestPromhttpExposure(t *testing.T) {
	IncDownloadAttempt("ok")
	IncTranscode("ok")
	IncProgressUpdate("surfaced")
	IncCleanupRemoved("ok")
	IncProcTerminate("SIGKILL", "sent")
	ObserveArtifactBytes("downloaded", 10<<20)

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, name := range []string{
		"mediafetch_download_attempts_total",
		"mediafetch_transcodes_total",
		"mediafetch_progress_updates_total",
		"mediafetch_cleanup_removed_total",
		"mediafetch_proc_terminate_total",
		"mediafetch_artifact_bytes",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
