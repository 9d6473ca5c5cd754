// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"time"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

// Media describes how the simulated pipeline behaves for one URI.
type Media struct {
	Duration time.Duration
	// Live media prerolls without data and has no duration.
	Live bool
	// TotalBytes defaults to 1 MiB for non-live media.
	TotalBytes int64
	// InitData, when set, makes preroll raise a key-needed condition.
	InitData []byte
	// Redirect is announced instead of prerolling.
	Redirect *ports.Redirect
	// Fail makes preroll fail with this error.
	Fail *ports.EngineError
	// DownloadStep is the download progress per Step or Advance in
	// ports.PercentMax units. Zero downloads everything at preroll.
	DownloadStep int64
	// Buffering percentages posted after preroll.
	Buffering []int
	// Tracks are announced after preroll when any count is set.
	Tracks model.Tracks
}

// Library maps URIs to media. Default serves URIs that are not listed.
type Library struct {
	Media   map[string]Media
	Default *Media
}

// Lookup returns the media for uri.
func (l Library) Lookup(uri string) (Media, bool) {
	if m, ok := l.Media[uri]; ok {
		return m, true
	}
	if l.Default != nil {
		return *l.Default, true
	}
	return Media{}, false
}

// DefaultLibrary serves every URI as a one minute clip.
func DefaultLibrary() Library {
	return Library{Default: &Media{
		Duration:     time.Minute,
		DownloadStep: ports.PercentMax / 20,
		Tracks:       model.Tracks{Video: 1, Audio: 1},
	}}
}
