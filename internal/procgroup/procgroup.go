// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns external tools as process-group leaders so that a
// whole tree (yt-dlp and the ffmpeg it forks) can be signalled at once.
package procgroup

import (
	"errors"
	"os/exec"
)

var (
	ErrKillFailed = errors.New("kill operation failed")
)

// Set configures the command to start in a new process group.
// Mandatory for Kill to reach grandchildren.
func Set(cmd *exec.Cmd) {
	set(cmd)
}
