// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

// SetRate changes the playback rate. Rate 0 pauses the pipeline; other
// rates reposition the stream once the pipeline is stable.
func (e *Engine) SetRate(rate float64) error {
	rate = model.ClampRate(rate, e.opts.MaxRate)

	if e.rate.CurrentRate == rate {
		// The caller may hold a stale rate from a rejected change.
		if !e.rate.ChangingRate && e.client.Rate() != e.rate.CurrentRate {
			e.client.RateChanged()
		}
		return nil
	}
	if e.IsLiveStream() {
		e.setChangingRate(false)
		metrics.IncRateChange("rejected_live")
		e.client.RateChanged()
		return model.ErrLiveStream
	}

	e.logger.Debug().
		Float64(log.FieldRate, rate).
		Float64("previous", e.rate.CurrentRate).
		Msg("rate change requested")

	e.rate.CurrentRate = rate
	e.setChangingRate(true)
	if e.pipe == nil {
		// Applied by the first reconciliation after load.
		return nil
	}

	cur, pending, _ := e.stateQuery()
	if rate == 0 {
		e.setChangingRate(false)
		e.setRatePause(true)
		if cur != ports.StatePaused && pending != ports.StatePaused {
			e.changePipelineState(ports.StatePaused)
		}
		metrics.IncRateChange("paused")
		return nil
	}

	if (cur != ports.StatePlaying && cur != ports.StatePaused) || pending == ports.StatePaused {
		metrics.IncRateChange("deferred")
		return nil
	}
	e.applyPendingRateChange()
	return nil
}

// applyPendingRateChange repositions the stream at the new rate.
func (e *Engine) applyPendingRateChange() {
	if !e.rate.ChangingRate || e.pipe == nil {
		return
	}

	rate := e.rate.CurrentRate
	position := e.playbackPosition()
	var mute bool
	if rate > 0 {
		// Extreme rates sound wrong without pitch correction.
		mute = !e.opts.PreservesPitch && (rate < 0.8 || rate > 2)
	} else {
		if position == 0 {
			position = -1
		}
		mute = true
	}

	if e.doSeek(position, rate, ports.SeekFlush) {
		e.rateMuted = mute
		if err := e.applyMute(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to apply rate mute")
		}
		e.rate.LastStableRate = rate
		metrics.IncRateChange("applied")
		e.logger.Info().
			Str(log.FieldEvent, "player.rate_applied").
			Float64(log.FieldRate, rate).
			Float64(log.FieldPosition, position).
			Bool("muted", mute).
			Msg("rate applied")
	} else {
		e.rate.CurrentRate = e.rate.LastStableRate
		metrics.IncRateChange("reverted")
		e.logger.Warn().
			Float64(log.FieldRate, rate).
			Float64("restored", e.rate.LastStableRate).
			Msg("rate change failed")
	}

	if e.rate.PausedForZeroRate {
		cur, pending, _ := e.stateQuery()
		if cur != ports.StatePlaying && pending != ports.StatePlaying {
			e.changePipelineState(ports.StatePlaying)
		}
		e.setRatePause(false)
	}

	e.setChangingRate(false)
	e.client.RateChanged()
}

func (e *Engine) setChangingRate(v bool) {
	e.rate.ChangingRate = v
	e.st.ChangingRate = v
}

func (e *Engine) setRatePause(v bool) {
	e.rate.PausedForZeroRate = v
	e.st.PlaybackRatePause = v
}

// SetPreservesPitch controls whether extreme rates keep audio.
func (e *Engine) SetPreservesPitch(v bool) {
	e.opts.PreservesPitch = v
}

// SetMaxRate changes the rate clamp for later SetRate calls.
func (e *Engine) SetMaxRate(limit float64) {
	if limit > 0 {
		e.opts.MaxRate = limit
	}
}

// Volume returns the output volume in [0, 1].
func (e *Engine) Volume() float64 {
	return e.volume
}

// SetVolume sets the output volume, clamped to [0, 1].
func (e *Engine) SetVolume(v float64) error {
	v = clampVolume(v)
	if v == e.volume {
		return nil
	}
	if e.pipe != nil {
		if err := e.pipe.SetProperty(ports.PropVolume, v); err != nil {
			return err
		}
	}
	e.volume = v
	e.client.VolumeChanged(v)
	return nil
}

// Muted reports whether the user muted playback.
func (e *Engine) Muted() bool {
	return e.userMuted
}

// SetMuted mutes or unmutes playback. A rate-induced mute stays in effect.
func (e *Engine) SetMuted(muted bool) error {
	if muted == e.userMuted {
		return nil
	}
	e.userMuted = muted
	if err := e.applyMute(); err != nil {
		return err
	}
	e.client.MuteChanged(muted)
	return nil
}

func (e *Engine) applyMute() error {
	if e.pipe == nil {
		return nil
	}
	return e.pipe.SetProperty(ports.PropMute, e.userMuted || e.rateMuted)
}
