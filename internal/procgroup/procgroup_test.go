// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, chan struct{}) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}

	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	return cmd, exited
}

func TestProcessGroupKill(t *testing.T) {
	// sh -> sleep (background)
	//    -> sleep (foreground)
	cmd, exited := startGroup(t, "sleep 10 & sleep 10")
	pid := cmd.Process.Pid

	// give sh a moment to fork
	time.Sleep(100 * time.Millisecond)

	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "process should be group leader")

	require.NoError(t, Kill(cmd, syscall.SIGKILL))

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("group leader did not exit after SIGKILL")
	}

	status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if ok {
		assert.True(t, status.Signaled())
		assert.Equal(t, syscall.SIGKILL, status.Signal())
	}

	// Killed children whose parent died are reparented to PID 1. Without a
	// reaping init they stay zombies, which still count for kill(-pgid, 0).
	if _, err := os.Stat("/proc/self/stat"); err == nil {
		require.Eventually(t, func() bool { return len(liveGroupMembers(pgid)) == 0 },
			2*time.Second, 20*time.Millisecond, "process group %d still has running members", pgid)
		return
	}

	time.Sleep(50 * time.Millisecond)
	err = syscall.Kill(-pgid, syscall.Signal(0))
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		t.Fatalf("process group %d still exists after kill", pgid)
	}
	assert.ErrorIs(t, err, syscall.ESRCH)
}

// liveGroupMembers lists pids in process group pgid that are not zombies.
func liveGroupMembers(pgid int) []int {
	stats, _ := filepath.Glob("/proc/[0-9]*/stat")

	var live []int
	for _, path := range stats {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue // exited while scanning
		}
		pid, state, group, ok := parseStat(string(raw))
		if !ok || group != pgid || state == "Z" || state == "X" {
			continue
		}
		live = append(live, pid)
	}
	return live
}

// parseStat extracts pid, state and pgrp from a /proc/<pid>/stat line. The
// command name may contain spaces and parentheses, so fields are read after
// the last ')'.
func parseStat(line string) (pid int, state string, pgrp int, ok bool) {
	end := strings.LastIndexByte(line, ')')
	open := strings.IndexByte(line, '(')
	if end < 0 || open < 0 {
		return 0, "", 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(line[:open]))
	if err != nil {
		return 0, "", 0, false
	}
	fields := strings.Fields(line[end+1:])
	if len(fields) < 3 {
		return 0, "", 0, false
	}
	pgrp, err = strconv.Atoi(fields[2])
	if err != nil {
		return 0, "", 0, false
	}
	return pid, fields[0], pgrp, true
}

func TestParseStat(t *testing.T) {
	pid, state, pgrp, ok := parseStat("4242 (sleep) Z 1 4240 4240 0 -1")
	require.True(t, ok)
	assert.Equal(t, 4242, pid)
	assert.Equal(t, "Z", state)
	assert.Equal(t, 4240, pgrp)

	_, state, pgrp, ok = parseStat("7 (odd (name) x) S 1 7 7")
	require.True(t, ok)
	assert.Equal(t, "S", state)
	assert.Equal(t, 7, pgrp)

	_, _, _, ok = parseStat("garbage")
	assert.False(t, ok)
}

func TestKill_NilAndFinished(t *testing.T) {
	assert.NoError(t, Kill(nil, syscall.SIGKILL))
	assert.NoError(t, Kill(&exec.Cmd{}, syscall.SIGKILL))

	cmd, exited := startGroup(t, "exit 0")
	<-exited
	assert.NoError(t, Kill(cmd, syscall.SIGKILL), "already reaped group is not an error")
}

func TestTerminate_GracefulExit(t *testing.T) {
	cmd, exited := startGroup(t, "sleep 10")
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, Terminate(cmd, exited, 2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second, "SIGTERM alone should stop sleep")
}

func TestTerminate_EscalatesToSIGKILL(t *testing.T) {
	cmd, exited := startGroup(t, "trap '' TERM; while true; do sleep 1; done")
	time.Sleep(100 * time.Millisecond)

	grace := 200 * time.Millisecond
	start := time.Now()
	require.NoError(t, Terminate(cmd, exited, grace))
	assert.GreaterOrEqual(t, time.Since(start), grace)
}
