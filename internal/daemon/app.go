// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Metrological/qtwebkit/internal/config"
	"github.com/Metrological/qtwebkit/internal/log"
)

// ReloadFunc applies a reloaded configuration to the running player.
type ReloadFunc func(ctx context.Context, cfg config.Config) error

type worker struct {
	name string
	run  func(ctx context.Context) error
}

// App runs everything long-lived besides the HTTP servers: config watching
// and reload, the reload signal and background workers. The servers are
// left to the Manager.
type App struct {
	logger   zerolog.Logger
	manager  Manager
	holder   *config.Holder
	onReload ReloadFunc
	workers  []worker
	// reloadSignal triggers a config reload. Nil disables it.
	reloadSignal os.Signal
}

// NewApp returns an App. holder and onReload may be nil.
func NewApp(logger zerolog.Logger, manager Manager, holder *config.Holder, onReload ReloadFunc) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		holder:       holder,
		onReload:     onReload,
		reloadSignal: syscall.SIGHUP,
	}
}

// AddWorker registers a task that runs until its context ends. A worker
// error other than cancellation stops the app.
func (a *App) AddWorker(name string, run func(ctx context.Context) error) {
	a.workers = append(a.workers, worker{name: name, run: run})
}

// Run blocks until ctx ends or a task fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	g, ctx := errgroup.WithContext(ctx)

	if a.holder != nil {
		// A missing watcher only disables automatic reload.
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("config watcher unavailable")
		}
		defer a.holder.Stop()

		if a.onReload != nil {
			updates := make(chan config.Config, 1)
			a.holder.RegisterListener(updates)
			g.Go(func() error { return a.applyUpdates(ctx, updates) })
		}
		if a.reloadSignal != nil {
			g.Go(func() error { return a.reloadOnSignal(ctx) })
		}
	}

	for _, w := range a.workers {
		g.Go(func() error { return a.runWorker(ctx, w) })
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.WithoutCancel(ctx))
		}
		return err
	})
	return g.Wait()
}

func (a *App) applyUpdates(ctx context.Context, updates <-chan config.Config) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-updates:
			if err := a.onReload(ctx, cfg); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.apply_failed").Msg("reloaded config not applied")
				continue
			}
			a.logger.Info().Str(log.FieldEvent, "config.applied").Msg("reloaded config applied")
		}
	}
}

func (a *App) reloadOnSignal(ctx context.Context) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, a.reloadSignal)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			a.logger.Info().
				Str(log.FieldEvent, "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("reloading config")
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}

func (a *App) runWorker(ctx context.Context, w worker) error {
	err := w.run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	a.logger.Error().Err(err).Str(log.FieldEvent, "worker.failed").Str("worker", w.name).Msg("worker failed")
	return fmt.Errorf("%s: %w", w.name, err)
}
