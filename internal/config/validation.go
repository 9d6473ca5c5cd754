// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/resume"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// FieldError names the offending key of a validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks every section and reports all problems at once.
func Validate(cfg Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.LogLevel != "" {
		if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
			add("logLevel", "unknown level %q", cfg.LogLevel)
		}
	}

	if _, ok := model.ParsePreload(cfg.Player.Preload); !ok {
		add("player.preload", "must be one of none, metadata, auto (got %q)", cfg.Player.Preload)
	}
	if cfg.Player.MaxRate <= 0 {
		add("player.maxRate", "must be positive (got %g)", cfg.Player.MaxRate)
	}
	if cfg.Player.StateQueryTimeout <= 0 {
		add("player.stateQueryTimeout", "must be positive")
	}
	if cfg.Player.FillPollInterval <= 0 {
		add("player.fillPollInterval", "must be positive")
	}
	if lo.ContainsBy(cfg.Player.KeySystems, func(s string) bool { return strings.TrimSpace(s) == "" }) {
		add("player.keySystems", "must not contain empty entries")
	}

	if len(cfg.Redirect.AllowedSchemes) == 0 {
		add("redirect.allowedSchemes", "must list at least one scheme")
	}

	switch cfg.Resume.Backend {
	case resume.BackendMemory:
	case resume.BackendSqlite, resume.BackendFile:
		if strings.TrimSpace(cfg.Resume.Path) == "" {
			add("resume.path", "required for backend %q", cfg.Resume.Backend)
		}
	case resume.BackendRedis:
		if strings.TrimSpace(cfg.Resume.RedisAddr) == "" {
			add("resume.redisAddr", "required for backend %q", cfg.Resume.Backend)
		}
	default:
		add("resume.backend", "unknown backend %q", cfg.Resume.Backend)
	}
	if cfg.Resume.TTL < 0 {
		add("resume.ttl", "must not be negative")
	}
	if cfg.Resume.CheckpointInterval <= 0 {
		add("resume.checkpointInterval", "must be positive")
	}

	if strings.TrimSpace(cfg.API.ListenAddr) == "" {
		add("api.listenAddr", "required")
	}
	if cfg.API.RequestsPerSecond <= 0 {
		add("api.requestsPerSecond", "must be positive (got %d)", cfg.API.RequestsPerSecond)
	}

	if cfg.MetricsEnabled() && strings.TrimSpace(cfg.Metrics.ListenAddr) == "" {
		add("metrics.listenAddr", "required when metrics are enabled")
	}

	if cfg.Telemetry.Enabled {
		if !lo.Contains([]string{"grpc", "http"}, cfg.Telemetry.Exporter) {
			add("telemetry.exporter", "must be grpc or http (got %q)", cfg.Telemetry.Exporter)
		}
		if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
			add("telemetry.endpoint", "required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		add("telemetry.samplingRate", "must be within [0, 1] (got %g)", cfg.Telemetry.SamplingRate)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
