// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

// Seek moves playback to t seconds. Seeks requested while another one is
// settling are coalesced so that the last request wins.
func (e *Engine) Seek(t float64) error {
	if e.pipe == nil {
		return model.ErrNoPipeline
	}
	if e.st.ErrorOccurred {
		return model.ErrLoadFailed
	}
	if math.IsNaN(t) {
		return fmt.Errorf("seek target is not a number")
	}
	t = math.Max(0, t)

	if t == e.CurrentTime() {
		metrics.IncSeek("noop")
		return nil
	}
	if e.IsLiveStream() {
		metrics.IncSeek("rejected_live")
		return model.ErrLiveStream
	}

	logger := e.logger.With().Float64(log.FieldSeekTime, t).Logger()

	if e.st.Seeking {
		e.seek.SetOverlapping(t)
		if e.st.SeekIsPending {
			e.seek.TargetTime = t
			metrics.IncSeek("coalesced")
			logger.Debug().Msg("pending seek retargeted")
			return nil
		}
	}

	cur, _, ret := e.stateQuery()
	if ret == ports.StateChangeFailure || ret == ports.StateChangeNoPreroll {
		logger.Debug().Str(log.FieldResult, ret.String()).Msg("seek aborted, pipeline not seekable")
		metrics.IncSeek("aborted")
		return nil
	}

	if ret == ports.StateChangeAsync || cur < ports.StatePaused || e.st.IsEndReached {
		e.st.SeekIsPending = true
		if e.st.IsEndReached {
			logger.Debug().Msg("seek after end of stream, resetting pipeline")
			e.st.ResetPipeline = true
			e.changePipelineState(ports.StatePaused)
		}
		metrics.IncSeek("pending")
	} else {
		if !e.doSeek(t, e.rate.CurrentRate, ports.SeekFlush|ports.SeekAccurate) {
			logger.Warn().Msg("pipeline rejected seek")
			metrics.IncSeek("failed")
			return nil
		}
		metrics.IncSeek("issued")
	}

	e.st.Seeking = true
	e.seek.TargetTime = t
	e.st.IsEndReached = false
	e.seekStarted = time.Now()
	logger.Info().Str(log.FieldEvent, "player.seek_issued").Bool("pending", e.st.SeekIsPending).Msg("seek")
	return nil
}

// doSeek issues one low-level seek. A rate of 0 is sent as 1. A negative
// position with a reverse rate spans the whole stream so playback does not
// end immediately.
func (e *Engine) doSeek(position, rate float64, flags ports.SeekFlags) bool {
	if rate == 0 {
		rate = 1
	}
	var start, stop time.Duration
	if rate > 0 {
		start = toClockTime(position)
		stop = ports.ClockTimeNone
	} else {
		start = 0
		if position < 0 {
			stop = toClockTime(e.Duration())
		} else {
			stop = toClockTime(position)
		}
	}

	e.logger.Debug().
		Float64(log.FieldPosition, position).
		Float64(log.FieldRate, rate).
		Dur("start", start).
		Dur("stop", stop).
		Msg("low-level seek")
	return e.pipe.Seek(rate, flags, start, stop)
}

// asyncStateSettled runs when the pipeline finished an asynchronous
// transition, which is how flush seeks complete.
func (e *Engine) asyncStateSettled() {
	if e.pipe == nil || e.st.ErrorOccurred {
		return
	}
	if !e.st.Seeking {
		e.reconcile()
		return
	}
	if e.st.SeekIsPending {
		e.reconcile()
		return
	}

	e.st.Seeking = false
	if !e.seekStarted.IsZero() {
		metrics.ObserveSeekSettle(time.Since(e.seekStarted))
	}
	e.logger.Debug().Float64(log.FieldSeekTime, e.seek.TargetTime).Msg("seek settled")

	if t, ok := e.seek.Overlapping(); ok && t != e.seek.TargetTime {
		e.seek.ClearOverlapping()
		if err := e.Seek(t); err != nil {
			e.logger.Debug().Err(err).Msg("overlapping seek dropped")
		}
		return
	}
	e.seek.ClearOverlapping()

	// The pipeline may still be transitioning, in which case position
	// queries fail and the seek target stands in for the position.
	e.canFallBackToLastFinishedSeekPosition = true
	e.timeChanged()
}

func (e *Engine) timeChanged() {
	e.reconcile()
	e.client.TimeChanged()
}

// CurrentTime returns the playback position in seconds.
func (e *Engine) CurrentTime() float64 {
	if e.pipe == nil || e.st.ErrorOccurred {
		return 0
	}
	if e.st.Seeking {
		return e.seek.TargetTime
	}
	if e.st.IsEndReached && e.rate.CurrentRate < 0 {
		return 0
	}
	return e.playbackPosition()
}

func (e *Engine) playbackPosition() float64 {
	if e.st.IsEndReached {
		// The pipeline is torn down at end of stream and reports 0.
		if e.st.Seeking {
			return e.seek.TargetTime
		}
		if d := e.Duration(); !math.IsInf(d, 1) {
			return d
		}
		return 0
	}
	if pos, ok := e.pipe.QueryPosition(); ok && pos != ports.ClockTimeNone {
		return fromClockTime(pos)
	}
	if e.canFallBackToLastFinishedSeekPosition {
		return e.seek.TargetTime
	}
	return 0
}

// didEnd handles end of stream.
func (e *Engine) didEnd() {
	// Align duration with the final position, reverse playback does not
	// always report 0.
	now := e.CurrentTime()
	if now > 0 && now <= e.Duration() && e.duration != now {
		e.durationKnown = true
		e.duration = now
		e.client.DurationChanged()
	}

	e.st.IsEndReached = true
	e.logger.Info().
		Str(log.FieldEvent, "player.eos").
		Float64(log.FieldPosition, now).
		Msg("end of stream")
	e.timeChanged()

	if !e.client.Looping() {
		e.st.Paused = true
		e.changePipelineState(ports.StateNull)
		e.buf.DownloadFinished = false
	}
}
