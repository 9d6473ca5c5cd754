// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Metrological/qtwebkit/internal/config"
	"github.com/Metrological/qtwebkit/internal/log"
)

type fakeManager struct {
	started  atomic.Bool
	shutdown atomic.Bool
}

func (m *fakeManager) Start(ctx context.Context) error {
	m.started.Store(true)
	<-ctx.Done()
	return nil
}

func (m *fakeManager) Shutdown(context.Context) error {
	m.shutdown.Store(true)
	return nil
}

func (m *fakeManager) RegisterShutdownHook(string, ShutdownHook) {}

func TestAppRequiresManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}

func TestAppRunsWorkersUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := &fakeManager{}
	app := NewApp(log.WithComponent("test"), mgr, nil, nil)

	var stopped atomic.Bool
	app.AddWorker("resume", func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, mgr.started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "a cancelled worker is a clean stop")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, stopped.Load())
}

func TestAppStopsOnWorkerFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	errBroken := errors.New("store unreachable")
	app := NewApp(log.WithComponent("test"), &fakeManager{}, nil, nil)
	app.AddWorker("resume", func(context.Context) error { return errBroken })

	err := app.Run(context.Background())
	require.ErrorIs(t, err, errBroken)
	assert.Contains(t, err.Error(), "resume")
}

func TestAppAppliesReloadedConfig(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("player:\n  maxRate: 4\n"), 0o600))
	loader := config.NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewHolder(initial, loader)

	applied := make(chan config.Config, 1)
	mgr := &fakeManager{}
	app := NewApp(log.WithComponent("test"), mgr, holder, func(_ context.Context, cfg config.Config) error {
		select {
		case applied <- cfg:
		default:
		}
		return nil
	})
	app.reloadSignal = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.Eventually(t, mgr.started.Load, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("player:\n  maxRate: 8\n"), 0o600))
	require.NoError(t, holder.Reload(ctx))
	select {
	case cfg := <-applied:
		assert.Equal(t, 8.0, cfg.Player.MaxRate)
	case <-time.After(5 * time.Second):
		t.Fatal("reloaded config was not applied")
	}

	cancel()
	require.NoError(t, <-done)
}
