// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package progress

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		ok      bool
		percent float64
		text    string
	}{
		{"[download]  42.3% of 10.00MiB at 1.00MiB/s ETA 00:05", true, 42.3, "42.3"},
		{"[download] 100% of 10.00MiB in 00:10", true, 100, "100"},
		{"[download]   0.0% of ~5MiB", true, 0, "0.0"},
		{"[download] Destination: temp/abc.mp4", false, 0, ""},
		{"[Merger] Merging formats into \"temp/abc.mp4\"", false, 0, ""},
		{"[download]42%", false, 0, ""},
		{"[download] 999% nonsense", false, 0, ""},
		{"ERROR: login required", false, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			s, ok := Parse(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.percent, s.Percent, 1e-9)
				assert.Equal(t, tt.text, s.Text)
			}
		})
	}
}

func TestMonitor_FirstSampleSurfaces(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMonitor(time.Second, clock.Now)

	s, ok := m.Observe("[download]   1.5% of 3MiB")
	require.True(t, ok)
	assert.Equal(t, "1.5", s.Text)
	assert.Equal(t, clock.t, s.ObservedAt)
}

func TestMonitor_ThrottleWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMonitor(time.Second, clock.Now)

	_, ok := m.Observe("[download] 10.0%")
	require.True(t, ok)

	clock.Advance(400 * time.Millisecond)
	_, ok = m.Observe("[download] 20.0%")
	assert.False(t, ok, "inside the window")

	clock.Advance(600 * time.Millisecond)
	s, ok := m.Observe("[download] 30.0%")
	require.True(t, ok, "window elapsed")
	assert.InDelta(t, 30.0, s.Percent, 1e-9)
}

func TestMonitor_SamePercentNeverSurfacesTwice(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMonitor(time.Second, clock.Now)

	_, ok := m.Observe("[download] 50.0%")
	require.True(t, ok)

	clock.Advance(5 * time.Second)
	_, ok = m.Observe("[download] 50.0%")
	assert.False(t, ok)

	// An unchanged sample does not consume the window.
	_, ok = m.Observe("[download] 51.0%")
	assert.True(t, ok)
}

func TestMonitor_RegressionPassesThrough(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMonitor(time.Second, clock.Now)

	_, ok := m.Observe("[download] 80.0%")
	require.True(t, ok)
	clock.Advance(2 * time.Second)
	s, ok := m.Observe("[download]  5.0%")
	require.True(t, ok)
	assert.InDelta(t, 5.0, s.Percent, 1e-9)
}

func TestMonitor_SurfacedSequenceProperties(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMonitor(time.Second, clock.Now)

	var got []Sample
	pct := 0.0
	for i := 0; i < 500; i++ {
		clock.Advance(130 * time.Millisecond)
		if i%3 != 0 {
			pct += 0.7
		}
		line := "[download] " + formatPercent(pct) + "% of 100MiB"
		if s, ok := m.Observe(line); ok {
			got = append(got, s)
		}
	}

	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1].Percent, got[i].Percent)
		assert.GreaterOrEqual(t, got[i].ObservedAt.Sub(got[i-1].ObservedAt), time.Second)
	}
	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, got[len(got)-1], last)
}

func TestMonitor_IgnoresNonProgressLines(t *testing.T) {
	m := NewMonitor(0, nil)
	_, ok := m.Observe("[youtube] abc: Downloading webpage")
	assert.False(t, ok)
	_, ok = m.Last()
	assert.False(t, ok)
}

func formatPercent(p float64) string {
	if p > 100 {
		p = 100
	}
	return strconv.FormatFloat(p, 'f', 1, 64)
}
