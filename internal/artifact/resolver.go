// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediafetch/internal/log"
)

// Resolve determines the artifact of job id. The expected path wins when it
// exists; otherwise the largest non-partial file with the id prefix is used.
// Equal sizes are broken by name so the choice is deterministic.
func (w *Workspace) Resolve(id, expected string, logger zerolog.Logger) (Artifact, error) {
	if expected != "" {
		a, err := Stat(expected)
		if err == nil {
			return a, nil
		}
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str(log.FieldPath, expected).Msg("stat expected artifact")
		}
	}

	files, err := w.Files(id)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: scan %s: %v", ErrMissing, w.dir, err)
	}

	var best Artifact
	found := false
	for _, p := range files {
		if isPartial(filepath.Base(p)) {
			continue
		}
		a, err := Stat(p)
		if err != nil {
			continue
		}
		if !found || a.Size > best.Size {
			best, found = a, true
		}
	}
	if !found {
		return Artifact{}, fmt.Errorf("%w: id %s in %s", ErrMissing, id, w.dir)
	}

	logger.Info().
		Str(log.FieldEvent, "artifact.fallback").
		Str("expected", expected).
		Str(log.FieldPath, best.Path).
		Int64(log.FieldBytes, best.Size).
		Int("candidates", len(files)).
		Msg("expected output absent, using largest candidate")
	return best, nil
}
