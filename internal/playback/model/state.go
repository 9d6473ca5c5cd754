// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "math"

// PlaybackState is the authoritative state of one player session.
// It is owned by the engine and mutated only on the control loop.
type PlaybackState struct {
	NetworkState      NetworkState
	ReadyState        ReadyState
	Paused            bool
	Seeking           bool
	SeekIsPending     bool
	ChangingRate      bool
	PlaybackRatePause bool
	IsEndReached      bool
	ErrorOccurred     bool
	ResetPipeline     bool
}

// NewPlaybackState returns the state of a player that has not loaded anything.
func NewPlaybackState() PlaybackState {
	return PlaybackState{
		NetworkState: NetworkEmpty,
		ReadyState:   HaveNothing,
		Paused:       true,
	}
}

// SeekRequest tracks the target of the seek in flight and the most recent
// target requested while it was settling.
type SeekRequest struct {
	TargetTime float64

	overlapping float64
	hasOverlap  bool
}

// SetOverlapping records t to be replayed once the current seek settles.
func (r *SeekRequest) SetOverlapping(t float64) {
	r.overlapping = t
	r.hasOverlap = true
}

// Overlapping returns the recorded overlapping target, if any.
func (r *SeekRequest) Overlapping() (float64, bool) {
	return r.overlapping, r.hasOverlap
}

// ClearOverlapping drops the overlapping target.
func (r *SeekRequest) ClearOverlapping() {
	r.overlapping = 0
	r.hasOverlap = false
}

// BufferingState accumulates buffering and download progress.
type BufferingState struct {
	IsBuffering         bool
	Percentage          int
	MaxTimeLoaded       float64
	DownloadFinished    bool
	LastReportedMaxTime float64
}

// AdvanceMaxTimeLoaded moves MaxTimeLoaded forward. Smaller values are ignored
// so the loaded horizon never shrinks within a load session.
func (b *BufferingState) AdvanceMaxTimeLoaded(t float64) {
	if math.IsNaN(t) || t <= b.MaxTimeLoaded {
		return
	}
	b.MaxTimeLoaded = t
}

// Reset clears all progress, used on a new load or when the pipeline drops to NULL.
func (b *BufferingState) Reset() {
	*b = BufferingState{}
}

// RateState holds the playback rate and the bookkeeping of a rate change.
type RateState struct {
	CurrentRate       float64
	LastStableRate    float64
	ChangingRate      bool
	PausedForZeroRate bool
}

// NewRateState returns the state for normal forward playback.
func NewRateState() RateState {
	return RateState{CurrentRate: 1, LastStableRate: 1}
}

// ClampRate limits rate to [-limit, limit]. A non-positive limit disables clamping.
func ClampRate(rate, limit float64) float64 {
	if limit <= 0 {
		return rate
	}
	return math.Max(-limit, math.Min(limit, rate))
}
