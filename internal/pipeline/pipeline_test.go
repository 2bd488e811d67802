// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/mediafetch/internal/artifact"
	"github.com/ManuGH/mediafetch/internal/proc/proctest"
	"github.com/ManuGH/mediafetch/internal/stats"
	"github.com/ManuGH/mediafetch/internal/transcode"
	"github.com/ManuGH/mediafetch/internal/ytdlp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mib = 1 << 20

type recordingReporter struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingReporter) Report(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func (r *recordingReporter) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func (r *recordingReporter) Last() string {
	t := r.Texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type recordingDeliverer struct {
	mu         sync.Mutex
	deliveries []Delivery
	existed    []bool
	err        error
	check      func(d Delivery)
}

func (d *recordingDeliverer) Deliver(_ context.Context, del Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, statErr := os.Stat(del.Path)
	d.deliveries = append(d.deliveries, del)
	d.existed = append(d.existed, statErr == nil)
	if d.check != nil {
		d.check(del)
	}
	return d.err
}

type harness struct {
	ws        *artifact.Workspace
	launcher  *proctest.Launcher
	counters  *stats.Counters
	pipeline  *Pipeline
	reporter  *recordingReporter
	deliverer *recordingDeliverer
}

func newHarness(t *testing.T, cfg Config, scripts ...proctest.Script) *harness {
	t.Helper()
	ws, err := artifact.NewWorkspace(filepath.Join(t.TempDir(), "temp"))
	require.NoError(t, err)

	l := proctest.NewLauncher(scripts...)
	counters := stats.New()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = time.Minute
	}
	p, err := New(cfg, Deps{
		Workspace: ws,
		Launcher:  l,
		Builder:   &ytdlp.Builder{WorkDir: ws.Dir(), FileExists: func(string) bool { return false }},
		Gate: &transcode.Gate{
			Launcher:     l,
			Settings:     transcode.DefaultSettings(),
			MaxBytes:     50 * mib,
			PollInterval: 5 * time.Millisecond,
		},
		Counters: counters,
	})
	require.NoError(t, err)
	return &harness{
		ws:        ws,
		launcher:  l,
		counters:  counters,
		pipeline:  p,
		reporter:  &recordingReporter{},
		deliverer: &recordingDeliverer{},
	}
}

func (h *harness) run(job *Job) Outcome {
	return h.pipeline.Run(context.Background(), job, h.reporter, h.deliverer)
}

func (h *harness) assertNoFilesLeft(t *testing.T, job *Job) {
	t.Helper()
	left, err := h.ws.Files(job.ID)
	require.NoError(t, err)
	assert.Empty(t, left, "cleanup must remove every file of the job")
}

// outputArg returns the -o value of a downloader invocation with the
// template extension replaced by ext.
func outputArg(args []string, ext string) string {
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			return strings.Replace(args[i+1], "%(ext)s", ext, 1)
		}
	}
	return ""
}

func sized(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// downloads writes size bytes to the expected output path.
func downloads(size int64) func([]string) error {
	return func(args []string) error {
		return sized(outputArg(args, "mp3"), size)
	}
}

// encodes writes size bytes to the re-encoder output (last argument).
func encodes(size int64) func([]string) error {
	return func(args []string) error {
		return sized(args[len(args)-1], size)
	}
}

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{
		Lines:   []string{"[download] Destination: x", "[download]  10.0% of 10MiB"},
		OnStart: downloads(10 * mib),
	})
	job := NewJob("https://example.com/v/1", ModeVideo, Meta{Title: "clip"})

	out := h.run(job)

	require.NoError(t, out.Err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Empty(t, out.Kind)
	assert.EqualValues(t, 10*mib, out.Artifact.Size)
	assert.Len(t, h.launcher.Invocations(), 1)

	require.Len(t, h.deliverer.deliveries, 1)
	d := h.deliverer.deliveries[0]
	assert.Equal(t, job.ID, d.JobID)
	assert.Equal(t, h.ws.Path(job.ID, ".mp4"), d.Path)
	assert.Equal(t, "clip", d.Meta.Title)
	assert.True(t, h.deliverer.existed[0], "artifact must exist at delivery time")

	assert.Equal(t, stats.Snapshot{Success: 1}, h.counters.Snapshot())
	assert.Equal(t, "Done. | success: 1, failures: 0", h.reporter.Last())
	assert.Contains(t, h.reporter.Texts(), "Downloading... (try 1/3) | success: 0, failures: 0")
	assert.Contains(t, h.reporter.Texts(), "Downloading... (try 1/3) [10.0%] | success: 0, failures: 0")

	snap := job.Snapshot()
	assert.Equal(t, StateSucceeded, snap.State)
	assert.Equal(t, 1, snap.Attempt)
	assert.Equal(t, h.reporter.Last(), snap.Status)
	assert.False(t, snap.FinishedAt.IsZero())
	h.assertNoFilesLeft(t, job)
}

func TestRun_RetriesNonZeroExitThenSucceeds(t *testing.T) {
	h := newHarness(t, Config{},
		proctest.Script{Lines: []string{"ERROR: unable to extract"}, ExitCode: 7},
		proctest.Script{Lines: []string{"ERROR: unable to extract"}, ExitCode: 7},
		proctest.Script{OnStart: downloads(1 * mib)},
	)
	job := NewJob("https://example.com/v/2", ModeVideo, Meta{})

	out := h.run(job)

	assert.Equal(t, StateSucceeded, out.State)
	assert.Len(t, h.launcher.Invocations(), 3)
	assert.Len(t, h.deliverer.deliveries, 1)
	assert.Equal(t, 3, job.Snapshot().Attempt)
	assert.Contains(t, h.reporter.Texts(), "Downloading... (try 3/3) | success: 0, failures: 0")
	h.assertNoFilesLeft(t, job)
}

func TestRun_ExhaustedAttemptsClassified(t *testing.T) {
	tests := []struct {
		name string
		diag string
		want Kind
	}{
		{"auth wall", "ERROR: [Instagram] abc: Login required to view this content", KindAuthOrRateLimited},
		{"rate limited", "ERROR: HTTP Error 429: Too Many Requests", KindAuthOrRateLimited},
		{"generic", "ERROR: Unsupported URL", KindProcessFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, proctest.Script{Lines: []string{tt.diag}, ExitCode: 1})
			job := NewJob("https://www.instagram.com/p/abc/", ModeVideo, Meta{})

			out := h.run(job)

			assert.Equal(t, StateFailed, out.State)
			assert.Equal(t, tt.want, out.Kind)
			assert.Equal(t, UserMessage(tt.want), out.Message)
			assert.Len(t, h.launcher.Invocations(), 3)
			assert.Empty(t, h.deliverer.deliveries)
			assert.Equal(t, stats.Snapshot{Failure: 1}, h.counters.Snapshot())
			assert.Equal(t, UserMessage(tt.want)+" | success: 0, failures: 1", h.reporter.Last())
			for _, text := range h.reporter.Texts() {
				assert.NotContains(t, text, tt.diag, "raw diagnostics never reach the status channel")
			}
		})
	}
}

func TestRun_TimeoutIsTerminal(t *testing.T) {
	h := newHarness(t, Config{AttemptTimeout: 30 * time.Millisecond}, proctest.Script{
		Lines: []string{"[download]   1.0% of 1GiB"},
		Hang:  true,
		OnStart: func(args []string) error {
			return sized(outputArg(args, "mp4")+".part", 1024)
		},
	})
	job := NewJob("https://example.com/v/slow", ModeVideo, Meta{})

	out := h.run(job)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, KindTimeout, out.Kind)
	require.Len(t, h.launcher.Invocations(), 1, "timeouts are not retried")
	assert.True(t, h.launcher.Handles()[0].Killed())
	assert.Equal(t, stats.Snapshot{Failure: 1}, h.counters.Snapshot())
	assert.Equal(t, "Download timeout. Try again later. | success: 0, failures: 1", h.reporter.Last())
	h.assertNoFilesLeft(t, job)
}

func TestRun_FallbackCandidateBelowCeiling(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{
		OnStart: func(args []string) error {
			base := strings.TrimSuffix(outputArg(args, "mp4"), ".mp4")
			if err := sized(base+".webm.part", 2*mib); err != nil {
				return err
			}
			return sized(base+".mkv", 40*mib)
		},
	})
	job := NewJob("https://example.com/v/mkv", ModeVideo, Meta{})

	out := h.run(job)

	require.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, h.ws.Path(job.ID, ".mkv"), out.Artifact.Path)
	assert.Len(t, h.launcher.Invocations(), 1, "no transcode below the ceiling")
	require.Len(t, h.deliverer.deliveries, 1)
	assert.EqualValues(t, 40*mib, h.deliverer.deliveries[0].Size)
	h.assertNoFilesLeft(t, job)
}

func TestRun_MissingArtifact(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{
		OnStart: func(args []string) error {
			return sized(outputArg(args, "mp4")+".part", mib)
		},
	})
	job := NewJob("https://example.com/v/gone", ModeVideo, Meta{})

	out := h.run(job)

	assert.Equal(t, KindMissingArtifact, out.Kind)
	assert.ErrorIs(t, out.Err, artifact.ErrMissing)
	assert.Len(t, h.launcher.Invocations(), 1)
	assert.Empty(t, h.deliverer.deliveries)
	h.assertNoFilesLeft(t, job)
}

func TestRun_OversizeTranscodedBeforeDelivery(t *testing.T) {
	h := newHarness(t, Config{},
		proctest.Script{OnStart: downloads(80 * mib)},
		proctest.Script{OnStart: encodes(45 * mib)},
	)
	job := NewJob("https://example.com/v/big", ModeVideo, Meta{})
	original := h.ws.Path(job.ID, ".mp4")
	h.deliverer.check = func(Delivery) {
		_, err := os.Stat(original)
		assert.True(t, errors.Is(err, os.ErrNotExist), "pre-transcode file deleted before delivery")
	}

	out := h.run(job)

	require.Equal(t, StateSucceeded, out.State)
	inv := h.launcher.Invocations()
	require.Len(t, inv, 2)
	assert.Equal(t, "ffmpeg", inv[1].Name)
	require.Len(t, h.deliverer.deliveries, 1)
	assert.Equal(t, h.ws.Path(job.ID, "_compressed.mp4"), h.deliverer.deliveries[0].Path)
	assert.EqualValues(t, 45*mib, h.deliverer.deliveries[0].Size)
	assert.Contains(t, h.reporter.Texts(), "Large file, transcoding... | success: 0, failures: 0")
	h.assertNoFilesLeft(t, job)
}

func TestRun_TranscodeOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		script proctest.Script
		want   Kind
	}{
		{"still oversize", proctest.Script{OnStart: encodes(60 * mib)}, KindOversizeArtifact},
		{"encoder fails", proctest.Script{ExitCode: 1, Lines: []string{"Conversion failed!"}}, KindTranscodeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, proctest.Script{OnStart: downloads(80 * mib)}, tt.script)
			job := NewJob("https://example.com/v/huge", ModeVideo, Meta{})

			out := h.run(job)

			assert.Equal(t, tt.want, out.Kind)
			assert.Len(t, h.launcher.Invocations(), 2, "exactly one re-encode")
			assert.Empty(t, h.deliverer.deliveries, "no oversized artifact is delivered")
			h.assertNoFilesLeft(t, job)
		})
	}
}

func TestRun_AudioModeTranscodesToMP3(t *testing.T) {
	h := newHarness(t, Config{},
		proctest.Script{OnStart: downloads(70 * mib)},
		proctest.Script{OnStart: encodes(20 * mib)},
	)
	job := NewJob("Boards of Canada Roygbiv", ModeAudio, Meta{Performer: "BoC"})

	out := h.run(job)

	require.Equal(t, StateSucceeded, out.State)
	inv := h.launcher.Invocations()
	require.Len(t, inv, 2)
	assert.Equal(t, "ytsearch1:Boards of Canada Roygbiv", inv[0].Args[len(inv[0].Args)-1])
	assert.Contains(t, inv[1].Args, "libmp3lame")
	assert.Equal(t, h.ws.Path(job.ID, "_compressed.mp3"), out.Artifact.Path)
	assert.Equal(t, ModeAudio, h.deliverer.deliveries[0].Mode)
	assert.Equal(t, "BoC", h.deliverer.deliveries[0].Meta.Performer)
}

func TestRun_ReporterFailureNeverAffectsOutcome(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{OnStart: downloads(mib)})
	h.reporter.err = errors.New("message edit rejected")
	job := NewJob("https://example.com/v/ok", ModeVideo, Meta{})

	out := h.run(job)

	assert.Equal(t, StateSucceeded, out.State)
	assert.NotEmpty(t, h.reporter.Texts())
}

func TestRun_PanickingReporterIsContained(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{OnStart: downloads(mib)})
	job := NewJob("https://example.com/v/ok", ModeVideo, Meta{})
	reporter := ReporterFunc(func(context.Context, string) error { panic("reporter bug") })

	out := h.pipeline.Run(context.Background(), job, reporter, h.deliverer)

	assert.Equal(t, StateSucceeded, out.State)
}

func TestRun_PanicBecomesUnexpected(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{Panic: "launcher exploded"})
	job := NewJob("https://example.com/v/p", ModeVideo, Meta{})
	require.NoError(t, sized(h.ws.Path(job.ID, ".mp4.part"), 1))

	out := h.run(job)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, KindUnexpected, out.Kind)
	assert.Equal(t, stats.Snapshot{Failure: 1}, h.counters.Snapshot())
	assert.Equal(t, StateFailed, job.State())
	h.assertNoFilesLeft(t, job)
}

func TestRun_DeliveryErrorIsUnexpected(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{OnStart: downloads(mib)})
	h.deliverer.err = errors.New("outbox full")
	job := NewJob("https://example.com/v/x", ModeVideo, Meta{})

	out := h.run(job)

	assert.Equal(t, KindUnexpected, out.Kind)
	assert.Equal(t, stats.Snapshot{Failure: 1}, h.counters.Snapshot())
	h.assertNoFilesLeft(t, job)
}

func TestRun_CancelledContextKillsDownloader(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{Hang: true})
	job := NewJob("https://example.com/v/c", ModeVideo, Meta{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := h.pipeline.Run(ctx, job, h.reporter, h.deliverer)

	assert.Equal(t, KindUnexpected, out.Kind)
	assert.True(t, h.launcher.Handles()[0].Killed())
	assert.Len(t, h.launcher.Invocations(), 1)
	assert.Equal(t, "Unexpected error. Try again later. | success: 0, failures: 1", h.reporter.Last())
}

func TestRun_ConcurrentJobsCountOnce(t *testing.T) {
	h := newHarness(t, Config{}, proctest.Script{OnStart: downloads(mib)})

	var wg sync.WaitGroup
	jobs := make([]*Job, 8)
	for i := range jobs {
		jobs[i] = NewJob("https://example.com/v/many", ModeVideo, Meta{})
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			h.pipeline.Run(context.Background(), j, nil, nil)
		}(jobs[i])
	}
	wg.Wait()

	assert.Equal(t, stats.Snapshot{Success: 8}, h.counters.Snapshot())
	for _, j := range jobs {
		assert.Equal(t, StateSucceeded, j.State())
		h.assertNoFilesLeft(t, j)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
