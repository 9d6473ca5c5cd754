// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/Metrological/qtwebkit/internal/api"
	"github.com/Metrological/qtwebkit/internal/config"
	"github.com/Metrological/qtwebkit/internal/playback/engine"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/resume"
	xnet "github.com/Metrological/qtwebkit/internal/platform/net"
	"github.com/Metrological/qtwebkit/internal/telemetry"
)

const serviceName = "mediaplayer"

func originPolicy(r config.RedirectConfig) xnet.OriginPolicy {
	return xnet.OriginPolicy{
		AllowCrossOrigin: r.AllowCrossOrigin,
		Schemes:          append([]string(nil), r.AllowedSchemes...),
		Hosts:            append([]string(nil), r.AllowedHosts...),
	}
}

func engineOptions(cfg config.Config) (engine.Options, error) {
	preload, ok := model.ParsePreload(cfg.Player.Preload)
	if !ok {
		return engine.Options{}, fmt.Errorf("unknown preload %q", cfg.Player.Preload)
	}
	return engine.Options{
		Preload:           preload,
		PreservesPitch:    cfg.Player.PreservesPitch,
		MaxRate:           cfg.Player.MaxRate,
		StateQueryTimeout: cfg.Player.StateQueryTimeout,
		FillPollInterval:  cfg.Player.FillPollInterval,
		OriginPolicy:      originPolicy(cfg.Redirect),
		KeySystems:        append([]string(nil), cfg.Player.KeySystems...),
	}, nil
}

// reconfig carries the keys a config reload may change on a running player.
func reconfig(cfg config.Config) engine.Reconfig {
	return engine.Reconfig{
		PreservesPitch: cfg.Player.PreservesPitch,
		MaxRate:        cfg.Player.MaxRate,
		OriginPolicy:   originPolicy(cfg.Redirect),
	}
}

func resumeConfig(r config.ResumeConfig) resume.Config {
	return resume.Config{
		Backend:   r.Backend,
		Path:      r.Path,
		RedisAddr: r.RedisAddr,
		TTL:       r.TTL,
	}
}

func telemetryConfig(t config.TelemetryConfig, version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        t.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    "production",
		ExporterType:   t.Exporter,
		Endpoint:       t.Endpoint,
		SamplingRate:   t.SamplingRate,
	}
}

func apiConfig(cfg config.Config) api.Config {
	out := api.Config{
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		EnableMetrics:     cfg.MetricsEnabled(),
		KeySystems:        append([]string(nil), cfg.Player.KeySystems...),
	}
	if cfg.Telemetry.Enabled {
		out.TracingService = serviceName
	}
	return out
}
