// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package artifact

import (
	"errors"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/metrics"
)

// CleanupGuard owns every file of one job. Release is safe to call more than
// once and never returns an error: removal failures are logged and counted.
type CleanupGuard struct {
	ws     *Workspace
	id     string
	logger zerolog.Logger

	mu       sync.Mutex
	tracked  []string
	released bool
}

// Guard registers the cleanup scope for job id.
func (w *Workspace) Guard(id string, logger zerolog.Logger) *CleanupGuard {
	return &CleanupGuard{ws: w, id: id, logger: logger}
}

// Track adds a path outside the id namespace to the scope.
func (g *CleanupGuard) Track(path string) {
	if path == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracked = append(g.tracked, path)
}

// Release removes all files with the job id prefix plus any tracked paths
// and returns how many were removed.
func (g *CleanupGuard) Release() int {
	g.mu.Lock()
	tracked := append([]string(nil), g.tracked...)
	g.released = true
	g.mu.Unlock()

	files, err := g.ws.Files(g.id)
	if err != nil {
		g.logger.Warn().Err(err).Str(log.FieldEvent, "cleanup.scan_failed").Msg("list job files")
	}

	seen := make(map[string]struct{}, len(files)+len(tracked))
	removed := 0
	for _, p := range append(files, tracked...) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
			metrics.IncCleanupRemoved("ok")
		case errors.Is(err, os.ErrNotExist):
		default:
			metrics.IncCleanupRemoved("error")
			g.logger.Warn().Err(err).
				Str(log.FieldEvent, "cleanup.remove_failed").
				Str(log.FieldPath, p).
				Msg("failed to remove temporary file")
		}
	}
	if removed > 0 {
		g.logger.Debug().Int("removed", removed).Str(log.FieldEvent, "cleanup.done").Msg("job files removed")
	}
	return removed
}

// Released reports whether Release has run.
func (g *CleanupGuard) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}
