// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs the player daemon: its HTTP servers, config reload
// wiring and background workers.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Metrological/qtwebkit/internal/log"
)

// ShutdownHook releases a resource during graceful shutdown. Hooks run
// after the servers stopped, last registered first.
type ShutdownHook func(ctx context.Context) error

// Manager owns the daemon's HTTP listeners and its shutdown sequence.
type Manager interface {
	// Start serves until ctx ends or a listener fails, then shuts down.
	Start(ctx context.Context) error
	// Shutdown stops the listeners and runs the hooks. Only the first call
	// does work.
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
}

// listener is one HTTP server run by the manager.
type listener struct {
	name string
	srv  *http.Server
}

type namedHook struct {
	name string
	hook ShutdownHook
}

type manager struct {
	cfg    ServerConfig
	deps   Deps
	logger zerolog.Logger

	mu        sync.Mutex
	listeners []listener
	hooks     []namedHook
	started   bool
	stopping  bool
}

// NewManager validates deps and returns a manager that has not started yet.
func NewManager(cfg ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultServerConfig("").ShutdownTimeout
	}
	return &manager{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str(log.FieldComponent, "manager").Logger(),
	}, nil
}

// buildListeners creates the API server and, when configured, the metrics
// server. The metrics listener keeps no write timeout so slow scrapes finish.
func (m *manager) buildListeners() []listener {
	out := []listener{{
		name: "api",
		srv: &http.Server{
			Addr:              m.cfg.ListenAddr,
			Handler:           m.deps.APIHandler,
			ReadTimeout:       m.cfg.ReadTimeout,
			ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
			WriteTimeout:      m.cfg.WriteTimeout,
			IdleTimeout:       m.cfg.IdleTimeout,
			MaxHeaderBytes:    m.cfg.MaxHeaderBytes,
		},
	}}
	if m.deps.MetricsHandler != nil && m.deps.MetricsAddr != "" {
		out = append(out, listener{
			name: "metrics",
			srv: &http.Server{
				Addr:              m.deps.MetricsAddr,
				Handler:           m.deps.MetricsHandler,
				ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
			},
		})
	}
	return out
}

func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.listeners = m.buildListeners()
	listeners := m.listeners
	m.mu.Unlock()

	failed := make(chan error, len(listeners))
	for _, l := range listeners {
		go m.serve(l, failed)
	}

	select {
	case err := <-failed:
		if shutdownErr := m.Shutdown(ctx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str(log.FieldEvent, "daemon.stopping").Msg("stop requested")
		return m.Shutdown(ctx)
	}
}

func (m *manager) serve(l listener, failed chan<- error) {
	m.logger.Info().
		Str(log.FieldEvent, "server.listening").
		Str("server", l.name).
		Str("addr", l.srv.Addr).
		Msg("listening")
	err := l.srv.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	m.logger.Error().
		Err(err).
		Str(log.FieldEvent, "server.failed").
		Str("server", l.name).
		Msg("server failed")
	failed <- fmt.Errorf("%s server: %w", l.name, err)
}

func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown context is nil")
	}

	m.mu.Lock()
	switch {
	case m.stopping:
		m.mu.Unlock()
		return nil
	case !m.started:
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	listeners := m.listeners
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	// The caller's context is usually already cancelled here.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, l := range listeners {
		if err := l.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s server shutdown: %w", l.name, err))
		}
	}
	errs = append(errs, m.runHooks(ctx, hooks)...)

	if err := errors.Join(errs...); err != nil {
		m.logger.Error().Err(err).Str(log.FieldEvent, "daemon.shutdown_failed").Msg("shutdown finished with errors")
		return err
	}
	m.logger.Info().Str(log.FieldEvent, "daemon.shutdown").Msg("shutdown complete")
	return nil
}

func (m *manager) runHooks(ctx context.Context, hooks []namedHook) []error {
	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		err := h.hook(ctx)
		ev := m.logger.Debug()
		if err != nil {
			ev = m.logger.Error().Err(err)
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
		ev.Str("hook", h.name).Dur("took", time.Since(start)).Msg("shutdown hook ran")
	}
	return errs
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.mu.Unlock()
}
