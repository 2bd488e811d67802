// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package artifact owns the per-job file namespace inside the work directory:
// locating the produced artifact and removing everything a job left behind.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrMissing is returned when no usable output file exists for a job.
var ErrMissing = errors.New("artifact: output file not found")

// Artifact is a concrete output file.
type Artifact struct {
	Path string
	Size int64
}

// Workspace is the temporary directory shared by all jobs. Every file of a
// job is named with the job id as prefix.
type Workspace struct {
	dir string
}

// NewWorkspace creates dir if needed.
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		return nil, errors.New("artifact: empty work directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("artifact: create work dir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path returns the path of "<id><suffix>" inside the workspace.
func (w *Workspace) Path(id, suffix string) string {
	return filepath.Join(w.dir, id+suffix)
}

// Files lists the regular files whose name starts with id.
func (w *Workspace) Files(id string) ([]string, error) {
	if id == "" {
		return nil, errors.New("artifact: empty job id")
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), id) {
			continue
		}
		out = append(out, filepath.Join(w.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Stat returns the artifact at path.
func Stat(path string) (Artifact, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	if fi.IsDir() {
		return Artifact{}, fmt.Errorf("%s: is a directory", path)
	}
	return Artifact{Path: path, Size: fi.Size()}, nil
}

// isPartial reports downloader leftovers that never count as a finished file.
func isPartial(name string) bool {
	switch {
	case strings.HasSuffix(name, ".part"),
		strings.HasSuffix(name, ".ytdl"),
		strings.HasSuffix(name, ".temp"),
		strings.Contains(name, ".part-Frag"):
		return true
	}
	return false
}
