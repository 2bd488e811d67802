// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHolder(t *testing.T, body string) (*Holder, string) {
	t.Helper()
	t.Setenv(EnvWorkDir, t.TempDir())
	t.Setenv(EnvOutboxDir, t.TempDir())
	path := writeConfig(t, body)
	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	return NewHolder(cfg, loader), path
}

func TestHolder_ReloadSwapsAndNotifies(t *testing.T) {
	h, path := newTestHolder(t, "downloader:\n  maxAttempts: 2\n")
	assert.Equal(t, 2, h.Get().Downloader.MaxAttempts)

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("downloader:\n  maxAttempts: 4\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, 4, h.Get().Downloader.MaxAttempts)
	select {
	case got := <-ch:
		assert.Equal(t, 4, got.Downloader.MaxAttempts)
	default:
		t.Fatal("listener not notified")
	}
}

func TestHolder_InvalidReloadKeepsPrevious(t *testing.T) {
	h, path := newTestHolder(t, "downloader:\n  maxAttempts: 2\n")

	require.NoError(t, os.WriteFile(path, []byte("downloader:\n  maxAttempts: 0\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 2, h.Get().Downloader.MaxAttempts)

	require.NoError(t, os.WriteFile(path, []byte("downloader:\n  bogus: 1\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 2, h.Get().Downloader.MaxAttempts)
}

func TestHolder_FullListenerDoesNotBlock(t *testing.T) {
	h, _ := newTestHolder(t, "")
	ch := make(chan AppConfig)
	h.RegisterListener(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Reload(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on listener")
	}
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	h, path := newTestHolder(t, "downloader:\n  maxAttempts: 2\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("downloader:\n  maxAttempts: 6\n"), 0o600))
	require.Eventually(t, func() bool {
		return h.Get().Downloader.MaxAttempts == 6
	}, 5*time.Second, 50*time.Millisecond)
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "test"))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
