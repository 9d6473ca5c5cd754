// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "github.com/Metrological/qtwebkit/internal/playback/model"

// Client is the player-facing collaborator. All methods are invoked on the
// player's control loop.
type Client interface {
	NetworkStateChanged(model.NetworkState)
	ReadyStateChanged(model.ReadyState)
	TimeChanged()
	DurationChanged()
	RateChanged()
	VolumeChanged(volume float64)
	MuteChanged(muted bool)
	PlaybackStateChanged()
	// KeyNeeded surfaces a key-needed condition. It returns false when no
	// listener claimed it.
	KeyNeeded(initData []byte) bool

	// Rate is the rate the collaborator believes is in effect.
	Rate() float64
	// Looping reports whether playback restarts at end of stream.
	Looping() bool
}

// TrackObserver is optionally implemented by a Client to learn which
// kinds of streams the media carries.
type TrackObserver interface {
	TracksChanged(model.Tracks)
}

// StallObserver is optionally implemented by a Client to learn about
// per-stream decode failures that do not end the session.
type StallObserver interface {
	Stalled(err error)
}
