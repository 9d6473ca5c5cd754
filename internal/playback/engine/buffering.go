// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"math"

	"github.com/samber/lo"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

func (e *Engine) processBufferingStats(percent int) {
	if !e.buf.IsBuffering {
		metrics.IncBuffering("start")
	}
	e.buf.IsBuffering = true
	e.buf.Percentage = max(0, min(100, percent))
	e.logger.Trace().Int(log.FieldPercent, e.buf.Percentage).Msg("buffering")
	e.reconcile()
}

// onFillLevelPoll samples the on-disk download progress.
func (e *Engine) onFillLevelPoll() {
	if e.pipe == nil || e.st.ErrorOccurred {
		e.fillTimer.Stop()
		return
	}
	q, ok := e.pipe.QueryBuffering()
	if !ok {
		return
	}

	fill := 100.0
	if q.Stop != -1 {
		fill = 100.0 * float64(q.Stop) / float64(ports.PercentMax)
	}

	// maxTimeLoaded can only be derived once the duration is known.
	if e.duration == 0 {
		e.durationChanged()
	}
	if d := e.duration; d > 0 && !math.IsInf(d, 1) {
		if fill >= 100 {
			e.buf.AdvanceMaxTimeLoaded(d)
		} else {
			e.buf.AdvanceMaxTimeLoaded(fill * d / 100)
		}
	}

	e.logger.Trace().
		Float64("fill", fill).
		Float64("max_time_loaded", e.buf.MaxTimeLoaded).
		Msg("download fill level")

	if fill < 100 {
		e.reconcile()
		return
	}

	// Fully downloaded, playback no longer depends on the network.
	e.fillTimer.Stop()
	e.buf.DownloadFinished = true
	metrics.IncBuffering("download_finished")
	e.reconcile()
}

// MaxTimeSeekable is the end of the seekable range: the duration, or 0 for
// live media and failed loads.
func (e *Engine) MaxTimeSeekable() float64 {
	if e.pipe == nil || e.st.ErrorOccurred || e.IsLiveStream() {
		return 0
	}
	d := e.Duration()
	if math.IsInf(d, 1) {
		return 0
	}
	return d
}

// Seekable returns the range a seek may target.
func (e *Engine) Seekable() model.TimeRanges {
	return model.NewTimeRanges(model.TimeRange{Start: 0, End: e.MaxTimeSeekable()})
}

// Buffered returns the time ranges that are available locally.
func (e *Engine) Buffered() model.TimeRanges {
	if e.pipe == nil || e.st.ErrorOccurred || e.IsLiveStream() {
		return nil
	}
	d := e.Duration()
	if d == 0 || math.IsInf(d, 1) {
		return nil
	}

	q, ok := e.pipe.QueryBuffering()
	if !ok {
		return nil
	}
	ranges := model.NewTimeRanges(lo.Map(q.Ranges, func(r ports.BufferingRange, _ int) model.TimeRange {
		return model.TimeRange{
			Start: float64(r.Start) * d / float64(ports.PercentMax),
			End:   float64(r.Stop) * d / float64(ports.PercentMax),
		}
	})...)
	if len(ranges) > 0 {
		return ranges
	}
	if loaded := e.MaxTimeLoaded(); loaded > 0 {
		return model.NewTimeRanges(model.TimeRange{Start: 0, End: loaded})
	}
	return nil
}

// MaxTimeLoaded is the furthest position downloaded so far.
func (e *Engine) MaxTimeLoaded() float64 {
	if e.st.ErrorOccurred {
		return 0
	}
	if e.st.IsEndReached && e.duration > 0 {
		return e.duration
	}
	return e.buf.MaxTimeLoaded
}

// DidLoadingProgress reports whether MaxTimeLoaded moved since the last call.
func (e *Engine) DidLoadingProgress() bool {
	if e.pipe == nil || e.duration == 0 || e.TotalBytes() == 0 {
		return false
	}
	loaded := e.MaxTimeLoaded()
	progressed := loaded != e.buf.LastReportedMaxTime
	e.buf.LastReportedMaxTime = loaded
	return progressed
}

// TotalBytes returns the size of the media. A source that reports no
// length is a live stream.
func (e *Engine) TotalBytes() int64 {
	if e.pipe == nil || e.st.ErrorOccurred {
		return 0
	}
	if e.totalBytes != -1 {
		return e.totalBytes
	}
	n, ok := e.pipe.QueryTotalBytes()
	if !ok {
		return 0
	}
	e.totalBytes = n
	e.isStreaming = n == 0
	return n
}

// setDownloadBuffering turns on-disk buffering on for non-live media with
// preload auto. A download in progress is never switched off.
func (e *Engine) setDownloadBuffering() {
	if e.pipe == nil || e.st.ErrorOccurred {
		return
	}
	if e.downloadBuffering && e.st.ReadyState > model.HaveNothing && !e.st.ResetPipeline {
		return
	}

	should := !e.IsLiveStream() && e.preload == model.PreloadAuto
	if should == e.downloadBuffering && (!should || e.fillTimer.IsActive()) {
		return
	}
	if err := e.pipe.SetProperty(ports.PropDownload, should); err != nil {
		e.logger.Warn().Err(err).Msg("failed to toggle download buffering")
		return
	}
	e.downloadBuffering = should
	if should {
		e.fillTimer.StartRepeating(e.opts.FillPollInterval)
	} else {
		e.fillTimer.Stop()
	}
	e.logger.Debug().Bool("enabled", should).Msg("download buffering")
}

// Duration returns the media duration in seconds, +Inf when unknown.
func (e *Engine) Duration() float64 {
	if e.pipe == nil || e.st.ErrorOccurred {
		return 0
	}
	if !e.durationKnown {
		return math.Inf(1)
	}
	if e.duration > 0 {
		return e.duration
	}
	d, ok := e.pipe.QueryDuration()
	if !ok || d == ports.ClockTimeNone {
		return math.Inf(1)
	}
	return fromClockTime(d)
}

func (e *Engine) cacheDuration() {
	if e.duration > 0 || !e.durationKnown {
		return
	}
	d := e.Duration()
	if math.IsInf(d, 1) {
		// Only a failed query on a settled pipeline means the duration is unknowable.
		if cur, _, ret := e.stateQuery(); ret == ports.StateChangeSuccess && cur > ports.StateReady {
			e.durationKnown = false
		}
		return
	}
	e.duration = d
}

// durationChanged re-reads the duration. Observers are told only when a
// known duration changed; the first value is reported through ready state.
func (e *Engine) durationChanged() {
	if e.pipe == nil || e.st.ErrorOccurred {
		return
	}
	prev := e.duration
	e.durationKnown = true
	e.duration = 0
	e.cacheDuration()
	if prev != 0 && e.duration != prev {
		e.logger.Debug().
			Float64(log.FieldDuration, e.duration).
			Float64("previous", prev).
			Msg("duration changed")
		e.client.DurationChanged()
	}
}
