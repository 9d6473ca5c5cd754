// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	xnet "github.com/Metrological/qtwebkit/internal/platform/net"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

// Load starts a new load session for raw. The pipeline is created on the
// first call and reused afterwards.
func (e *Engine) Load(raw string) error {
	if e.closed {
		return model.ErrClosed
	}
	u, err := xnet.ParseMediaURL(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidURL, err)
	}

	// A streaming thread blocked on a key must be let go before the
	// pipeline can reach NULL.
	e.gate.Release()
	if e.pipe == nil {
		p, err := e.factory()
		if err != nil {
			return fmt.Errorf("create pipeline: %w", err)
		}
		e.pipe = p
		e.subscribe(p)
	} else if cur, _, _ := e.stateQuery(); cur > ports.StateNull {
		e.pipe.SetState(ports.StateNull)
	}
	// Messages of the previous session are stale from here on.
	e.loadGen.Add(1)

	e.fillTimer.Stop()
	e.resetSession()

	if err := e.pipe.SetProperty(ports.PropURI, u.String()); err != nil {
		return fmt.Errorf("set uri: %w", err)
	}
	e.url = u
	e.logger.Info().
		Str(log.FieldEvent, "player.load").
		Str(log.FieldURL, xnet.SanitizeURL(u.String())).
		Str("preload", string(e.preload)).
		Msg("load")

	if e.preload == model.PreloadNone {
		e.logger.Debug().Msg("delaying load")
		e.delayingLoad = true
	}

	e.setNetworkState(model.NetworkLoading)
	e.setReadyState(model.HaveNothing)

	if !e.delayingLoad {
		e.commitLoad()
	}
	return nil
}

// subscribe routes pipeline notifications into the engine. Async messages
// are tagged with the load session they arrived in.
func (e *Engine) subscribe(p ports.Pipeline) {
	p.Subscribe(ports.Handlers{
		Sync: e.HandleSyncMessage,
		Async: func(msg ports.Message) {
			gen := e.loadGen.Load()
			e.sched.Post(func() {
				if gen != e.loadGen.Load() {
					return
				}
				e.HandleMessage(msg)
			})
		},
	})
}

// resetSession clears everything scoped to one load. Network and ready
// states are kept so the next change is still reported.
func (e *Engine) resetSession() {
	st := model.NewPlaybackState()
	st.NetworkState = e.st.NetworkState
	st.ReadyState = e.st.ReadyState
	st.ResetPipeline = true
	e.st = st

	e.seek = model.SeekRequest{}
	e.seekStarted = time.Time{}
	e.canFallBackToLastFinishedSeekPosition = false
	e.buf.Reset()

	// The requested rate survives a new load and is reapplied once prerolled.
	e.rate.LastStableRate = 1
	e.setChangingRate(e.rate.CurrentRate != 0 && e.rate.CurrentRate != 1)
	e.setRatePause(false)
	e.rateMuted = false
	if err := e.applyMute(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to reset mute")
	}

	e.locations = nil
	e.delayingLoad = false
	e.isStreaming = false
	e.requestedState = ports.StateVoidPending
	e.duration = 0
	e.durationKnown = true
	e.totalBytes = -1
	e.tracks = model.Tracks{}
	e.downloadBuffering = false
	e.volumeAndMuteInitialized = false
	e.audioSinkDiscovered = false
	e.lastError = nil
}

func (e *Engine) commitLoad() {
	e.delayingLoad = false
	e.changePipelineState(ports.StatePaused)
	e.setDownloadBuffering()
	e.reconcile()
}

// PrepareToPlay switches preload to auto and commits a delayed load.
func (e *Engine) PrepareToPlay() {
	e.preload = model.PreloadAuto
	if e.delayingLoad {
		e.commitLoad()
	}
}

// SetPreload changes the loading hint. Leaving preload none commits a
// delayed load.
func (e *Engine) SetPreload(p model.Preload) {
	if p == model.PreloadAuto && e.IsLiveStream() {
		return
	}
	e.preload = p
	e.setDownloadBuffering()
	if e.delayingLoad && p != model.PreloadNone {
		e.commitLoad()
	}
}

// Play starts or resumes playback. At rate 0 playback is only marked as
// rate-paused.
func (e *Engine) Play() error {
	if e.pipe == nil {
		return model.ErrNoPipeline
	}
	if e.st.ErrorOccurred {
		return model.ErrLoadFailed
	}
	e.st.Paused = false
	if e.rate.CurrentRate == 0 {
		e.setRatePause(true)
		return nil
	}
	if e.delayingLoad {
		e.commitLoad()
	}
	if e.changePipelineState(ports.StatePlaying) {
		e.st.IsEndReached = false
		e.delayingLoad = false
		e.preload = model.PreloadAuto
		e.setDownloadBuffering()
		e.logger.Info().Str(log.FieldEvent, "player.play").Msg("play")
		return nil
	}
	return model.ErrLoadFailed
}

// Pause pauses playback.
func (e *Engine) Pause() error {
	if e.pipe == nil {
		return model.ErrNoPipeline
	}
	e.setRatePause(false)
	e.st.Paused = true
	cur, pending, _ := e.stateQuery()
	if cur < ports.StatePaused && pending <= ports.StatePaused {
		return nil
	}
	if e.changePipelineState(ports.StatePaused) {
		e.logger.Info().Str(log.FieldEvent, "player.pause").Msg("pause")
	}
	return nil
}

// CancelLoad stops a load in progress.
func (e *Engine) CancelLoad() {
	e.gate.Release()
	if e.st.NetworkState < model.NetworkLoading || e.st.NetworkState == model.NetworkLoaded {
		return
	}
	if e.pipe != nil {
		e.changePipelineState(ports.StateNull)
	}
}

// Close tears the session down. Deferred work is cancelled and a blocked
// key request is released before the pipeline is destroyed.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if n := e.ops.CancelAll(); n > 0 {
		metrics.AddAsyncOpsCancelled(n)
		e.logger.Debug().Int("cancelled", n).Msg("pending async operations cancelled")
	}
	e.gate.Close()
	e.fillTimer.Stop()

	if e.pipe == nil {
		return nil
	}
	e.pipe.SetState(ports.StateNull)
	err := e.pipe.Close()
	e.pipe = nil
	if err != nil && !errors.Is(err, model.ErrClosed) {
		return fmt.Errorf("close pipeline: %w", err)
	}
	return nil
}

func (e *Engine) urlString() string {
	if e.url == nil {
		return ""
	}
	return xnet.SanitizeURL(e.url.String())
}
