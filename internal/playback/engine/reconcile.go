// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"math"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

// derivedStates is the outcome of one reconciliation pass before it is
// published.
type derivedStates struct {
	network model.NetworkState
	ready   model.ReadyState
}

// reconcile re-reads the pipeline state and derives the ready and network
// states from it. Observers are notified only for values that changed.
func (e *Engine) reconcile() {
	if e.pipe == nil || e.st.ErrorOccurred {
		return
	}

	d := derivedStates{network: e.st.NetworkState, ready: e.st.ReadyState}
	cur, pending, ret := e.pipe.GetState(e.opts.StateQueryTimeout)
	shouldUpdatePlaybackState := false

	switch ret {
	case ports.StateChangeSuccess:
		// The pipeline is torn down at end of stream; keep the session as is.
		if e.st.IsEndReached && cur <= ports.StateReady {
			break
		}
		shouldUpdatePlaybackState = e.applyStableState(cur, false, &d)
	case ports.StateChangeNoPreroll:
		// Live sources reach PAUSED without prerolling.
		e.isStreaming = true
		e.setDownloadBuffering()
		shouldUpdatePlaybackState = e.applyStableState(cur, true, &d)
	case ports.StateChangeAsync:
		e.logger.Debug().
			Str(log.FieldOldState, cur.String()).
			Str(log.FieldPendingState, pending.String()).
			Msg("state change in progress")
	case ports.StateChangeFailure:
		e.logger.Warn().
			Str(log.FieldOldState, cur.String()).
			Str(log.FieldPendingState, pending.String()).
			Msg("pipeline state change failed")
		e.loadingFailed(e.failureCategory())
		return
	}
	if e.st.ErrorOccurred {
		return
	}

	e.requestedState = ports.StateVoidPending
	e.setNetworkState(d.network)
	e.setReadyState(d.ready)
	if shouldUpdatePlaybackState {
		e.client.PlaybackStateChanged()
	}

	e.logger.Trace().
		Str(log.FieldEvent, "player.state_reconciled").
		Str(log.FieldResult, ret.String()).
		Str(log.FieldNewState, cur.String()).
		Msg("state reconciled")

	if ret == ports.StateChangeSuccess && cur >= ports.StatePaused {
		e.applyPendingRateChange()
		e.commitPendingSeek()
	}
}

// applyStableState derives the player state for a pipeline that is not
// transitioning. Live pipelines skip the buffering derivation. It reports
// whether a requested PAUSED state has been reached.
func (e *Engine) applyStableState(cur ports.State, live bool, d *derivedStates) bool {
	if !live {
		if cur <= ports.StateReady {
			e.st.ResetPipeline = true
			if !e.st.IsEndReached {
				e.duration = 0
			}
		} else {
			e.st.ResetPipeline = false
			e.cacheDuration()
		}
	}

	didBuffering := e.buf.IsBuffering
	switch cur {
	case ports.StateNull:
		d.ready = model.HaveNothing
		d.network = model.NetworkEmpty
		e.buf.Reset()
	case ports.StateReady:
		if live {
			d.ready = model.HaveNothing
		} else {
			d.ready = model.HaveMetadata
			d.network = model.NetworkEmpty
		}
	case ports.StatePaused, ports.StatePlaying:
		if live {
			d.ready = model.HaveEnoughData
			d.network = model.NetworkLoading
		} else {
			e.deriveBufferedStates(d)
		}
	}

	switch cur {
	case ports.StatePaused:
		if live {
			e.st.Paused = true
			break
		}
		e.initVolumeAndMute()
		if didBuffering && !e.buf.IsBuffering && !e.st.Paused && e.rate.CurrentRate != 0 {
			e.changePipelineState(ports.StatePlaying)
		}
	case ports.StatePlaying:
		e.st.Paused = false
		if !live && (e.buf.IsBuffering || e.rate.CurrentRate == 0) {
			e.changePipelineState(ports.StatePaused)
		}
	default:
		e.st.Paused = true
	}

	if live && !e.st.Paused && e.rate.CurrentRate != 0 {
		e.changePipelineState(ports.StatePlaying)
	}

	return e.requestedState == ports.StatePaused && cur == ports.StatePaused
}

// deriveBufferedStates maps buffering and download progress onto the ready
// and network states of a prerolled pipeline.
func (e *Engine) deriveBufferedStates(d *derivedStates) {
	switch {
	case e.buf.IsBuffering && e.buf.Percentage >= 100:
		e.buf.IsBuffering = false
		e.buf.Percentage = 0
		d.ready = model.HaveEnoughData
		if e.buf.DownloadFinished {
			d.network = model.NetworkIdle
		} else {
			d.network = model.NetworkLoading
		}
		metrics.IncBuffering("complete")
	case e.buf.IsBuffering:
		d.ready = model.HaveCurrentData
		d.network = model.NetworkLoading
	case e.buf.DownloadFinished:
		d.ready = model.HaveEnoughData
		d.network = model.NetworkLoaded
	default:
		d.ready = model.HaveFutureData
		d.network = model.NetworkLoading
	}
}

// initVolumeAndMute publishes the sink volume and mute once per session.
func (e *Engine) initVolumeAndMute() {
	if !e.audioSinkDiscovered {
		if sink, err := e.pipe.Property(ports.PropAudioSink); err == nil && sink != nil {
			e.audioSinkDiscovered = true
			e.logger.Debug().Interface("sink", sink).Msg("audio sink discovered")
		}
	}
	if e.volumeAndMuteInitialized {
		return
	}
	e.volumeAndMuteInitialized = true
	e.client.VolumeChanged(e.Volume())
	e.client.MuteChanged(e.Muted())
}

// commitPendingSeek issues the seek deferred while the pipeline was
// transitioning.
func (e *Engine) commitPendingSeek() {
	if !e.st.SeekIsPending {
		return
	}
	e.st.SeekIsPending = false
	e.st.Seeking = e.doSeek(e.seek.TargetTime, e.rate.CurrentRate, ports.SeekFlush|ports.SeekAccurate)
	if !e.st.Seeking {
		metrics.IncSeek("failed")
		e.loadingFailed(model.NetworkDecodeError)
		return
	}
	metrics.IncSeek("committed")
}

// changePipelineState asks the pipeline for newState. It reports false when
// the pipeline rejected the transition, which fails the load.
func (e *Engine) changePipelineState(newState ports.State) bool {
	if e.pipe == nil {
		return false
	}
	cur, pending, _ := e.stateQuery()
	if cur == newState || pending == newState {
		return true
	}

	e.logger.Debug().
		Str(log.FieldOldState, cur.String()).
		Str(log.FieldNewState, newState.String()).
		Msg("changing pipeline state")

	ret := e.pipe.SetState(newState)
	pausedOrPlaying := ports.StatePlaying
	if newState == ports.StatePlaying {
		pausedOrPlaying = ports.StatePaused
	}
	if cur != pausedOrPlaying && ret == ports.StateChangeFailure {
		e.loadingFailed(model.NetworkFormatError)
		return false
	}
	return true
}

// loadingFailed ends the load session with the given error category.
func (e *Engine) loadingFailed(category model.NetworkState) {
	if !e.st.ErrorOccurred {
		metrics.IncLoadFailure(category.String())
	}
	e.st.ErrorOccurred = true
	e.fillTimer.Stop()
	e.logger.Error().
		Str(log.FieldEvent, "player.load_failed").
		Str(log.FieldNetworkState, category.String()).
		Str(log.FieldReadyState, e.st.ReadyState.String()).
		Str(log.FieldURL, e.urlString()).
		Msg("loading failed")
	e.setNetworkState(category)
	e.setReadyState(model.HaveNothing)
}

// failureCategory classifies a failed state change from the last engine
// error seen on the bus.
func (e *Engine) failureCategory() model.NetworkState {
	if e.lastError == nil {
		return model.NetworkFormatError
	}
	return classifyError(e.lastError).category
}

func clampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
