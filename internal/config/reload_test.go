// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const baseConfig = `
logLevel: info
player:
  maxRate: 4
resume:
  backend: memory
`

func newTestHolder(t *testing.T, body string) (*Holder, string) {
	t.Helper()
	path := writeConfig(t, t.TempDir(), body)
	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(cfg, loader)
	h.debounce = 50 * time.Millisecond
	return h, path
}

func TestReloadAppliesOnlyReloadableKeys(t *testing.T) {
	h, path := newTestHolder(t, baseConfig)

	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
player:
  maxRate: 2
  preservesPitch: true
  looping: true
  preload: none
redirect:
  allowCrossOrigin: true
resume:
  backend: file
  path: /tmp/resume.json
`), 0o600))

	ch := make(chan Config, 1)
	h.RegisterListener(ch)
	require.NoError(t, h.Reload(context.Background()))

	got := h.Get()
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, 2.0, got.Player.MaxRate)
	assert.True(t, got.Player.PreservesPitch)
	assert.True(t, got.Player.Looping)
	assert.True(t, got.Redirect.AllowCrossOrigin)
	assert.Equal(t, "auto", got.Player.Preload, "preload needs a restart")
	assert.Equal(t, "memory", got.Resume.Backend, "backend needs a restart")

	select {
	case notified := <-ch:
		assert.Equal(t, got, notified)
	default:
		t.Fatal("listener not notified")
	}
}

func TestReloadKeepsConfigOnError(t *testing.T) {
	h, path := newTestHolder(t, baseConfig)
	before := h.Get()

	require.NoError(t, os.WriteFile(path, []byte("player:\n  maxRate: -1\n"), 0o600))
	err := h.Reload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, before, h.Get())

	require.NoError(t, os.WriteFile(path, []byte("player:\n  turbo: true\n"), 0o600))
	err = h.Reload(context.Background())
	assert.ErrorIs(t, err, ErrUnknownConfigField)
	assert.Equal(t, before, h.Get())
}

func TestListenerSkippedWhenFull(t *testing.T) {
	h, _ := newTestHolder(t, baseConfig)
	ch := make(chan Config)
	h.RegisterListener(ch)

	done := make(chan error, 1)
	go func() { done <- h.Reload(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on a listener")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, path := newTestHolder(t, baseConfig)
	ch := make(chan Config, 4)
	h.RegisterListener(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	require.NoError(t, os.WriteFile(path, []byte("player:\n  maxRate: 3\n"), 0o600))

	select {
	case cfg := <-ch:
		assert.Equal(t, 3.0, cfg.Player.MaxRate)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}

	h.Stop()
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, _ := newTestHolder(t, baseConfig)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.StartWatcher(ctx))

	cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop still running")
	}
	h.Stop()
}

func TestWatcherDisabledWithoutPath(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader(""))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
