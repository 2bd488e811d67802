// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/procgroup"
)

const (
	maxLineBytes    = 1 << 20
	lineBuffer      = 64
	killWaitTimeout = 5 * time.Second
)

// ExecLauncher starts real OS processes in their own process group. The
// diagnostic stream merges the child's stdout and stderr: yt-dlp reports
// progress on stdout and errors on stderr.
type ExecLauncher struct {
	// Dir is the working directory of started processes (empty: inherit).
	Dir string
	// DiagnosticLines bounds the per-process DiagnosticLog.
	DiagnosticLines int
}

var _ Launcher = (*ExecLauncher)(nil)

// Start spawns name with args.
func (l *ExecLauncher) Start(ctx context.Context, name string, args []string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The parent owns the read end so cmd.Wait never closes it underneath the reader.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}

	cmd := exec.Command(name, args...) // #nosec G204 -- binaries come from operator config
	cmd.Dir = l.Dir
	cmd.Stdout = pw
	cmd.Stderr = pw
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	_ = pw.Close()

	h := &execHandle{
		cmd:    cmd,
		stream: pr,
		lines:  make(chan string, lineBuffer),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
		diag:   NewDiagnosticLog(l.DiagnosticLines),
	}

	plog := log.WithContext(ctx, log.WithComponent("proc"))
	plog.Debug().
		Str(log.FieldEvent, "proc.started").
		Int(log.FieldPID, cmd.Process.Pid).
		Str("command", cmd.String()).
		Msg("external process started")

	go h.readLoop()
	go h.waitLoop()
	return h, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	stream *os.File
	lines  chan string
	quit   chan struct{}
	exited chan struct{}
	diag   *DiagnosticLog

	// consumer-side state, only touched by ReadLine
	eof bool

	closeOnce sync.Once
	exitCode  int
	waitErr   error
}

func (h *execHandle) readLoop() {
	defer close(h.lines)

	scanner := bufio.NewScanner(h.stream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanLinesCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case h.lines <- line:
		case <-h.quit:
			return
		}
	}
}

func (h *execHandle) waitLoop() {
	err := h.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			err = nil
		}
	}
	h.exitCode = code
	h.waitErr = err
	close(h.exited)
}

func (h *execHandle) hasExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

func (h *execHandle) ReadLine(pollTimeout time.Duration) (string, ReadResult) {
	timer := time.NewTimer(pollTimeout)
	defer timer.Stop()

	if h.eof {
		select {
		case <-h.exited:
			return "", Closed
		case <-timer.C:
			return "", NoData
		}
	}

	select {
	case line, ok := <-h.lines:
		if !ok {
			h.eof = true
			if h.hasExited() {
				return "", Closed
			}
			return "", NoData
		}
		h.diag.Add(line)
		return line, Line
	case <-timer.C:
		if !h.hasExited() {
			return "", NoData
		}
		// Exited while a descendant may still hold the stream open: drain what
		// is buffered, then report closed.
		select {
		case line, ok := <-h.lines:
			if ok {
				h.diag.Add(line)
				return line, Line
			}
			h.eof = true
		default:
		}
		return "", Closed
	}
}

func (h *execHandle) Kill() error {
	err := procgroup.Force(h.cmd, h.exited, killWaitTimeout)
	_ = h.Close()
	return err
}

func (h *execHandle) Stop(grace time.Duration) error {
	err := procgroup.Terminate(h.cmd, h.exited, grace)
	_ = h.Close()
	return err
}

func (h *execHandle) Wait() (int, error) {
	<-h.exited
	return h.exitCode, h.waitErr
}

func (h *execHandle) Diagnostics() *DiagnosticLog { return h.diag }

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.quit)
		err = h.stream.Close()
	})
	return err
}

// scanLinesCR splits on '\n' and on bare '\r', which ffmpeg and yt-dlp use to
// redraw progress in place.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
