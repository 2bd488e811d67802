// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package progress extracts percent-complete samples from downloader output
// and throttles how often they are surfaced.
package progress

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/mediafetch/internal/metrics"
)

// DefaultThrottle is the minimum spacing of two surfaced samples.
const DefaultThrottle = time.Second

var percentPattern = regexp.MustCompile(`\[download\]\s+(\d{1,3}(?:\.\d+)?)%`)

// Sample is one parsed progress observation.
type Sample struct {
	Percent    float64
	Text       string // percent as printed by the downloader, e.g. "42.3"
	ObservedAt time.Time
}

// Parse extracts the percent value from a diagnostic line.
func Parse(line string) (Sample, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 || v > 100 {
		return Sample{}, false
	}
	return Sample{Percent: v, Text: m[1]}, true
}

// Monitor decides which samples of one attempt are surfaced. A sample is
// surfaced only if its percent differs from the last surfaced one and the
// throttle window has elapsed. Regressions are passed through.
type Monitor struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	now      func() time.Time
	last     Sample
	surfaced bool
}

// NewMonitor creates a monitor. A nil now selects time.Now; a non-positive
// throttle selects DefaultThrottle.
func NewMonitor(throttle time.Duration, now func() time.Time) *Monitor {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		limiter: rate.NewLimiter(rate.Every(throttle), 1),
		now:     now,
	}
}

// Observe feeds one diagnostic line. It returns the sample and true when the
// caller should surface it.
func (m *Monitor) Observe(line string) (Sample, bool) {
	s, ok := Parse(line)
	if !ok {
		return Sample{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.surfaced && s.Percent == m.last.Percent {
		metrics.IncProgressUpdate("unchanged")
		return Sample{}, false
	}
	s.ObservedAt = m.now()
	if !m.limiter.AllowN(s.ObservedAt, 1) {
		metrics.IncProgressUpdate("throttled")
		return Sample{}, false
	}
	m.last = s
	m.surfaced = true
	metrics.IncProgressUpdate("surfaced")
	return s, true
}

// Last returns the last surfaced sample.
func (m *Monitor) Last() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.surfaced
}
