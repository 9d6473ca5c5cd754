// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the player over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	xglog "github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/api/middleware"
	"github.com/Metrological/qtwebkit/internal/playback/engine"
	"github.com/Metrological/qtwebkit/internal/playback/keygate"
	"github.com/Metrological/qtwebkit/internal/playback/model"
)

// Controller is the player surface the API drives. *engine.Player
// implements it.
type Controller interface {
	engine.MediaPlayer
	SessionID() string
	SetVolume(ctx context.Context, v float64) error
	SetMuted(ctx context.Context, muted bool) error
	SetPreload(ctx context.Context, preload model.Preload) error
	PrepareToPlay(ctx context.Context) error
	CancelLoad(ctx context.Context) error
	GenerateKeyRequest(ctx context.Context, keySystem string) (keygate.Request, error)
	UpdateKey(ctx context.Context, sessionID string, license []byte) error
	ReleaseKeys(ctx context.Context) (bool, error)
	Snapshot(ctx context.Context) (engine.Snapshot, error)
}

var _ Controller = (*engine.Player)(nil)

// Config configures the HTTP surface.
type Config struct {
	RequestsPerSecond int
	// TracingService enables otelhttp spans under this name.
	TracingService string
	EnableMetrics  bool
	// KeySystems are accepted in addition to the built-in ones.
	KeySystems []string
	// CallTimeout bounds each player call. Zero means 5s.
	CallTimeout time.Duration
}

// Server routes HTTP requests to one player.
type Server struct {
	player Controller
	events *EventLog
	cfg    Config
	logger zerolog.Logger
}

// New creates a server for player. events may be nil when the player was
// created with another client.
func New(player Controller, events *EventLog, cfg Config) *Server {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	return &Server{
		player: player,
		events: events,
		cfg:    cfg,
		logger: xglog.WithComponent("api"),
	}
}

// Handler returns the router with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  s.cfg.EnableMetrics,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RequestsPerSecond > 0 {
			r.Use(middleware.PerSecond(s.cfg.RequestsPerSecond))
		}

		r.Get("/player", s.handleSnapshot)
		r.Get("/player/buffered", s.handleBuffered)
		r.Post("/player/load", s.handleLoad)
		r.Post("/player/play", s.handlePlay)
		r.Post("/player/pause", s.handlePause)
		r.Post("/player/seek", s.handleSeek)
		r.Post("/player/rate", s.handleRate)
		r.Post("/player/volume", s.handleVolume)
		r.Post("/player/muted", s.handleMuted)
		r.Post("/player/preload", s.handlePreload)
		r.Post("/player/prepare", s.handlePrepare)
		r.Post("/player/cancel", s.handleCancel)

		r.Post("/player/keys", s.handleKeyRequest)
		r.Put("/player/keys/{sessionID}", s.handleUpdateKey)
		r.Delete("/player/keys", s.handleReleaseKeys)

		r.Get("/events", s.handleEvents)
		r.Get("/capabilities/types", s.handleSupportsType)
		r.Get("/capabilities/keysystems/{keySystem}", s.handleSupportsKeySystem)
	})

	return r
}

// MetricsHandler serves the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (s *Server) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.CallTimeout)
}
