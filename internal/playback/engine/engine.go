// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine drives an external media pipeline and turns its
// asynchronous notifications into a deterministic playback state machine.
//
// Engine holds the state of one player and must only be used from the
// control loop. Player wraps it with a goroutine-safe API.
package engine

import (
	"math"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	xnet "github.com/Metrological/qtwebkit/internal/platform/net"
	"github.com/Metrological/qtwebkit/internal/playback/keygate"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

const (
	defaultStateQueryTimeout = 250 * time.Millisecond
	defaultFillPollInterval  = 200 * time.Millisecond
	defaultMaxRate           = 20.0
)

// Options tune an engine.
type Options struct {
	Preload           model.Preload
	PreservesPitch    bool
	MaxRate           float64
	StateQueryTimeout time.Duration
	FillPollInterval  time.Duration
	OriginPolicy      xnet.OriginPolicy
	KeySystems        []string
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Preload:           model.PreloadAuto,
		MaxRate:           defaultMaxRate,
		StateQueryTimeout: defaultStateQueryTimeout,
		FillPollInterval:  defaultFillPollInterval,
		OriginPolicy:      xnet.OriginPolicy{Schemes: []string{"http", "https", "file"}},
		KeySystems:        []string{"org.w3.clearkey"},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Preload == "" {
		o.Preload = d.Preload
	}
	if o.MaxRate <= 0 {
		o.MaxRate = d.MaxRate
	}
	if o.StateQueryTimeout <= 0 {
		o.StateQueryTimeout = d.StateQueryTimeout
	}
	if o.FillPollInterval <= 0 {
		o.FillPollInterval = d.FillPollInterval
	}
	if o.KeySystems == nil {
		o.KeySystems = d.KeySystems
	}
	return o
}

// Engine is the playback state machine of one player session.
type Engine struct {
	opts    Options
	client  ports.Client
	factory ports.Factory
	sched   Scheduler
	logger  zerolog.Logger

	pipe      ports.Pipeline
	gate      *keygate.Gate
	ops       *asyncOpQueue
	fillTimer RepeatingTimer

	st   model.PlaybackState
	seek model.SeekRequest
	buf  model.BufferingState
	rate model.RateState

	seekStarted                           time.Time
	canFallBackToLastFinishedSeekPosition bool

	url            *url.URL
	locations      *model.MediaLocationList
	preload        model.Preload
	delayingLoad   bool
	isStreaming    bool
	requestedState ports.State

	duration      float64
	durationKnown bool
	totalBytes    int64
	tracks        model.Tracks

	volume    float64
	userMuted bool
	rateMuted bool

	downloadBuffering        bool
	volumeAndMuteInitialized bool
	audioSinkDiscovered      bool
	lastError                *ports.EngineError
	closed                   bool

	// loadGen is read on pipeline goroutines.
	loadGen atomic.Uint64
}

// New creates an engine. The pipeline is created by factory on the first Load.
func New(client ports.Client, factory ports.Factory, sched Scheduler, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opts:          opts,
		client:        client,
		factory:       factory,
		sched:         sched,
		logger:        log.WithComponent("playback"),
		gate:          keygate.New(),
		ops:           newAsyncOpQueue(sched.Post),
		st:            model.NewPlaybackState(),
		rate:          model.NewRateState(),
		preload:       opts.Preload,
		durationKnown: true,
		totalBytes:    -1,
		volume:        1,
	}
	e.fillTimer = sched.NewRepeatingTimer(e.onFillLevelPoll)
	return e
}

// SetLogger replaces the engine logger, e.g. to attach a session id.
func (e *Engine) SetLogger(l zerolog.Logger) {
	e.logger = l
}

// State returns a copy of the authoritative playback state.
func (e *Engine) State() model.PlaybackState {
	return e.st
}

// NetworkState returns the current network state.
func (e *Engine) NetworkState() model.NetworkState { return e.st.NetworkState }

// ReadyState returns the current ready state.
func (e *Engine) ReadyState() model.ReadyState { return e.st.ReadyState }

// Seeking reports whether a seek is in flight.
func (e *Engine) Seeking() bool { return e.st.Seeking }

// Rate returns the requested playback rate.
func (e *Engine) Rate() float64 { return e.rate.CurrentRate }

// URL returns the location currently loaded.
func (e *Engine) URL() *url.URL { return e.url }

// IsLiveStream reports whether the current media is unbounded.
func (e *Engine) IsLiveStream() bool { return e.isStreaming }

// Paused reports whether playback is paused from the caller's point of view.
func (e *Engine) Paused() bool {
	if e.st.IsEndReached {
		return true
	}
	if e.st.PlaybackRatePause {
		return false
	}
	if e.pipe == nil {
		return true
	}
	cur, _, _ := e.pipe.GetState(0)
	return cur <= ports.StatePaused
}

func (e *Engine) setNetworkState(s model.NetworkState) {
	if e.st.NetworkState == s {
		return
	}
	old := e.st.NetworkState
	e.st.NetworkState = s
	metrics.IncStateTransition("network", s.String())
	e.logger.Debug().
		Str(log.FieldOldState, old.String()).
		Str(log.FieldNewState, s.String()).
		Str(log.FieldEvent, "player.network_state_changed").
		Msg("network state changed")
	e.client.NetworkStateChanged(s)
}

func (e *Engine) setReadyState(s model.ReadyState) {
	if e.st.ReadyState == s {
		return
	}
	old := e.st.ReadyState
	e.st.ReadyState = s
	metrics.IncStateTransition("ready", s.String())
	e.logger.Debug().
		Str(log.FieldOldState, old.String()).
		Str(log.FieldNewState, s.String()).
		Str(log.FieldEvent, "player.ready_state_changed").
		Msg("ready state changed")
	e.client.ReadyStateChanged(s)
}

// stateQuery asks the pipeline for its state without waiting.
func (e *Engine) stateQuery() (ports.State, ports.State, ports.StateChangeReturn) {
	return e.pipe.GetState(0)
}

func toClockTime(seconds float64) time.Duration {
	// Round to 10ms so repeated conversions stay stable.
	usec := math.Round(seconds*1e6/1e4) * 1e4
	return time.Duration(usec) * time.Microsecond
}

func fromClockTime(d time.Duration) float64 {
	return d.Seconds()
}
