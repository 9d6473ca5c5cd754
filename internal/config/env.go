// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEDIAPLAYER_"

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	switch {
	case !exists:
		return defaultValue
	case value == "":
		logger.Debug().
			Str("key", key).
			Str("default", defaultValue).
			Str("source", "default").
			Msg("using default value (environment variable is empty)")
		return defaultValue
	case strings.Contains(strings.ToLower(key), "password"):
		logger.Debug().
			Str("key", key).
			Str("source", "environment").
			Bool("sensitive", true).
			Msg("using environment variable")
	default:
		logger.Debug().
			Str("key", key).
			Str("value", value).
			Str("source", "environment").
			Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseValue(key, defaultValue, strconv.Atoi, "integer")
}

// ParseDuration reads a duration in Go duration format (e.g. "5s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseValue(key, defaultValue, time.ParseDuration, "duration")
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseValue(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, "float")
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseValue(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, strconv.ErrSyntax
	}, "boolean")
}

// ParseList reads a comma-separated list. Empty items are dropped.
func ParseList(key string, defaultValue []string) []string {
	raw := ParseString(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseValue[T any](key string, defaultValue T, parse func(string) (T, error), kind string) T {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	if v == "" {
		logger.Debug().
			Str("key", key).
			Interface("default", defaultValue).
			Str("source", "default").
			Msg("using default value (environment variable is empty)")
		return defaultValue
	}
	parsed, err := parse(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Interface("default", defaultValue).
			Msgf("invalid %s in environment variable, using default", kind)
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Interface("value", parsed).
		Str("source", "environment").
		Msg("using environment variable")
	return parsed
}

// mergeEnv applies MEDIAPLAYER_* overrides on top of cfg.
func mergeEnv(cfg *Config) {
	cfg.LogLevel = ParseString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)

	cfg.Player.Preload = ParseString(EnvPrefix+"PLAYER_PRELOAD", cfg.Player.Preload)
	cfg.Player.PreservesPitch = ParseBool(EnvPrefix+"PLAYER_PRESERVES_PITCH", cfg.Player.PreservesPitch)
	cfg.Player.Looping = ParseBool(EnvPrefix+"PLAYER_LOOPING", cfg.Player.Looping)
	cfg.Player.MaxRate = ParseFloat(EnvPrefix+"PLAYER_MAX_RATE", cfg.Player.MaxRate)
	cfg.Player.StateQueryTimeout = ParseDuration(EnvPrefix+"PLAYER_STATE_QUERY_TIMEOUT", cfg.Player.StateQueryTimeout)
	cfg.Player.FillPollInterval = ParseDuration(EnvPrefix+"PLAYER_FILL_POLL_INTERVAL", cfg.Player.FillPollInterval)
	cfg.Player.KeySystems = ParseList(EnvPrefix+"PLAYER_KEY_SYSTEMS", cfg.Player.KeySystems)

	cfg.Redirect.AllowCrossOrigin = ParseBool(EnvPrefix+"REDIRECT_ALLOW_CROSS_ORIGIN", cfg.Redirect.AllowCrossOrigin)
	cfg.Redirect.AllowedSchemes = ParseList(EnvPrefix+"REDIRECT_ALLOWED_SCHEMES", cfg.Redirect.AllowedSchemes)
	cfg.Redirect.AllowedHosts = ParseList(EnvPrefix+"REDIRECT_ALLOWED_HOSTS", cfg.Redirect.AllowedHosts)

	cfg.Resume.Backend = ParseString(EnvPrefix+"RESUME_BACKEND", cfg.Resume.Backend)
	cfg.Resume.Path = ParseString(EnvPrefix+"RESUME_PATH", cfg.Resume.Path)
	cfg.Resume.RedisAddr = ParseString(EnvPrefix+"RESUME_REDIS_ADDR", cfg.Resume.RedisAddr)
	cfg.Resume.TTL = ParseDuration(EnvPrefix+"RESUME_TTL", cfg.Resume.TTL)
	cfg.Resume.CheckpointInterval = ParseDuration(EnvPrefix+"RESUME_CHECKPOINT_INTERVAL", cfg.Resume.CheckpointInterval)

	cfg.API.ListenAddr = ParseString(EnvPrefix+"API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RequestsPerSecond = ParseInt(EnvPrefix+"API_REQUESTS_PER_SECOND", cfg.API.RequestsPerSecond)

	metricsEnabled := ParseBool(EnvPrefix+"METRICS_ENABLED", cfg.MetricsEnabled())
	cfg.Metrics.Enabled = &metricsEnabled
	cfg.Metrics.ListenAddr = ParseString(EnvPrefix+"METRICS_LISTEN_ADDR", cfg.Metrics.ListenAddr)

	cfg.Telemetry.Enabled = ParseBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
