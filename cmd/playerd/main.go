// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command playerd runs one media player behind an HTTP control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Metrological/qtwebkit/internal/api"
	"github.com/Metrological/qtwebkit/internal/config"
	"github.com/Metrological/qtwebkit/internal/daemon"
	xglog "github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/playback/engine"
	"github.com/Metrological/qtwebkit/internal/playback/resume"
	"github.com/Metrological/qtwebkit/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: serviceName,
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Precedence: ENV > File > Defaults.
	loader := config.NewLoader(strings.TrimSpace(*configPath))
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", loader.Path()).
			Msg("failed to load configuration")
	}
	xglog.SetLevel(cfg.LogLevel)

	source := "env+defaults"
	if loader.Path() != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", loader.Path()).
		Msg("configuration loaded")

	if err := run(ctx, logger, config.NewHolder(cfg, loader)); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
		stop()
		os.Exit(1)
	}
	logger.Info().Str("event", "daemon.stopped").Msg("daemon stopped")
}

func run(ctx context.Context, logger zerolog.Logger, holder *config.Holder) (err error) {
	cfg := holder.Get()

	provider, err := telemetry.NewProvider(ctx, telemetryConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { err = errors.Join(err, provider.Shutdown(context.WithoutCancel(ctx))) }()

	store, err := resume.NewStore(resumeConfig(cfg.Resume))
	if err != nil {
		return fmt.Errorf("resume store: %w", err)
	}
	defer func() { err = errors.Join(err, store.Close()) }()
	tracker := resume.NewTracker(store, cfg.Resume.CheckpointInterval)

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}

	factory, stopPipelines := newPipelineFactory(ctx)
	defer stopPipelines()

	events := api.NewEventLog(0, cfg.Player.Looping)
	player := engine.NewPlayer(events, factory, engine.PlayerOptions{
		Engine:             opts,
		Positions:          tracker,
		CheckpointInterval: cfg.Resume.CheckpointInterval,
	})
	// Close is idempotent; the shutdown hook normally runs it first.
	defer func() { _ = player.Close(context.WithoutCancel(ctx)) }()

	server := api.New(player, events, apiConfig(cfg))
	deps := daemon.Deps{
		Logger:     logger,
		APIHandler: server.Handler(),
	}
	if cfg.MetricsEnabled() {
		deps.MetricsHandler = api.MetricsHandler()
		deps.MetricsAddr = cfg.Metrics.ListenAddr
	}

	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.API.ListenAddr), deps)
	if err != nil {
		return err
	}
	mgr.RegisterShutdownHook("player", player.Close)

	app := daemon.NewApp(logger, mgr, holder, func(ctx context.Context, next config.Config) error {
		if !xglog.SetLevel(next.LogLevel) {
			logger.Warn().Str("level", next.LogLevel).Msg("ignoring unknown log level")
		}
		events.SetLooping(next.Player.Looping)
		return player.Reconfigure(ctx, reconfig(next))
	})
	app.AddWorker("resume", tracker.Run)

	logger.Info().
		Str("event", "daemon.start").
		Str("version", version).
		Str(xglog.FieldBackend, backendName).
		Str("session_id", player.SessionID()).
		Str("api", cfg.API.ListenAddr).
		Str("resume_backend", cfg.Resume.Backend).
		Msg("starting media player daemon")

	return app.Run(ctx)
}
