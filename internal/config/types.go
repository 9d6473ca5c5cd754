// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Config is the daemon configuration as read from YAML.
type Config struct {
	LogLevel  string          `yaml:"logLevel"`
	Player    PlayerConfig    `yaml:"player"`
	Redirect  RedirectConfig  `yaml:"redirect"`
	Resume    ResumeConfig    `yaml:"resume"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// PlayerConfig holds per-player defaults.
type PlayerConfig struct {
	Preload           string        `yaml:"preload"`
	PreservesPitch    bool          `yaml:"preservesPitch"`
	Looping           bool          `yaml:"looping"`
	MaxRate           float64       `yaml:"maxRate"`
	StateQueryTimeout time.Duration `yaml:"stateQueryTimeout"`
	FillPollInterval  time.Duration `yaml:"fillPollInterval"`
	KeySystems        []string      `yaml:"keySystems"`
}

// RedirectConfig controls which locations a redirect may move a session to.
type RedirectConfig struct {
	AllowCrossOrigin bool     `yaml:"allowCrossOrigin"`
	AllowedSchemes   []string `yaml:"allowedSchemes"`
	AllowedHosts     []string `yaml:"allowedHosts"`
}

// ResumeConfig selects the resume position store.
type ResumeConfig struct {
	Backend            string        `yaml:"backend"`
	Path               string        `yaml:"path"`
	RedisAddr          string        `yaml:"redisAddr"`
	TTL                time.Duration `yaml:"ttl"`
	CheckpointInterval time.Duration `yaml:"checkpointInterval"`
}

// APIConfig configures the HTTP control surface.
type APIConfig struct {
	ListenAddr        string `yaml:"listenAddr"`
	RequestsPerSecond int    `yaml:"requestsPerSecond"`
}

// MetricsConfig configures the Prometheus listener.
// Enabled is a pointer so an explicit false in the file survives the
// defaults merge.
type MetricsConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// MetricsEnabled reports whether the metrics listener should run.
func (c Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	enabled := true
	return Config{
		LogLevel: "info",
		Player: PlayerConfig{
			Preload:           "auto",
			MaxRate:           20,
			StateQueryTimeout: 250 * time.Millisecond,
			FillPollInterval:  200 * time.Millisecond,
			KeySystems:        []string{"org.w3.clearkey"},
		},
		Redirect: RedirectConfig{
			AllowedSchemes: []string{"http", "https", "file"},
		},
		Resume: ResumeConfig{
			Backend:            "memory",
			Path:               "/var/lib/mediaplayer/resume.db",
			TTL:                720 * time.Hour,
			CheckpointInterval: 5 * time.Second,
		},
		API: APIConfig{
			ListenAddr:        ":8089",
			RequestsPerSecond: 20,
		},
		Metrics: MetricsConfig{
			Enabled:    &enabled,
			ListenAddr: ":9109",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
