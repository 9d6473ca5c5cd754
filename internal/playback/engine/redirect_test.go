// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
	"github.com/Metrological/qtwebkit/internal/playback/sim"
)

const (
	redirectURL = "http://origin.example/watch"
	goodURL     = "http://origin.example/media/good.mp4"
	otherURL    = "http://origin.example/media/other.mp4"
	cdnURL      = "http://cdn.example/media.mp4"
)

func redirectLibrary(candidates ...string) sim.Library {
	return sim.Library{Media: map[string]sim.Media{
		redirectURL: {Redirect: &ports.Redirect{Locations: candidates}},
		goodURL:     {Duration: 10 * time.Second},
		otherURL:    {Duration: 10 * time.Second},
		cdnURL:      {Duration: 10 * time.Second},
	}}
}

func TestRedirectSkipsRejectedCandidates(t *testing.T) {
	// Candidates are tried from the last one; the first two tried fail the origin check.
	h := newHarness(t, redirectLibrary(
		"media/good.mp4",
		"http://elsewhere.example/bad.mp4",
		"ftp://origin.example/bad.mp4",
	), nil)

	h.load(redirectURL)
	h.client.Reset()
	h.step()

	require.NotNil(t, h.eng.URL())
	assert.Equal(t, goodURL, h.eng.URL().String())
	assert.Zero(t, h.eng.locations.Remaining())

	h.step()
	h.fill()
	assert.Equal(t, model.NetworkLoaded, h.eng.NetworkState())
	assert.Equal(t, model.HaveEnoughData, h.eng.ReadyState())
	assert.Equal(t, ports.StatePlaying, h.pipe.State())

	network := h.client.EventsWithPrefix("network:")
	require.NotEmpty(t, network)
	assert.Equal(t, "network:LOADING", network[0])
	assert.Equal(t, "network:LOADED", network[len(network)-1])
}

func TestRedirectDropsSeekInFlight(t *testing.T) {
	h := newHarness(t, redirectLibrary(goodURL), nil)
	h.load(redirectURL)

	// A seek issued against the old location.
	h.eng.seek = model.SeekRequest{TargetTime: 7}
	h.eng.seek.SetOverlapping(3)
	h.eng.seekStarted = time.Now()
	h.eng.st.Seeking = true
	h.eng.st.SeekIsPending = true
	h.step()

	require.Equal(t, goodURL, h.eng.URL().String())
	assert.False(t, h.eng.State().Seeking)
	assert.False(t, h.eng.State().SeekIsPending)
	assert.Equal(t, model.SeekRequest{}, h.eng.seek)
	assert.True(t, h.eng.seekStarted.IsZero())

	h.step()
	h.fill()
	assert.Equal(t, model.HaveEnoughData, h.eng.ReadyState())
	assert.Empty(t, h.pipe.Seeks(), "stale target is not replayed")
}

func TestRedirectExhaustedFailsLoad(t *testing.T) {
	h := newHarness(t, redirectLibrary(
		"http://elsewhere.example/a.mp4",
		"ftp://origin.example/b.mp4",
	), nil)

	h.load(redirectURL)
	h.step()

	assert.True(t, h.eng.State().ErrorOccurred)
	assert.Equal(t, model.NetworkNetworkError, h.eng.NetworkState())
	assert.Equal(t, model.HaveNothing, h.eng.ReadyState())
	assert.Equal(t, redirectURL, h.eng.URL().String())
}

func TestRedirectCrossOriginAllowedByPolicy(t *testing.T) {
	h := newHarness(t, redirectLibrary(cdnURL), func(o *Options) {
		o.OriginPolicy.AllowCrossOrigin = true
	})
	h.load(redirectURL)
	h.step()

	assert.Equal(t, cdnURL, h.eng.URL().String())
	assert.False(t, h.eng.State().ErrorOccurred)
}

func TestStreamErrorTriesNextLocation(t *testing.T) {
	h := newHarness(t, redirectLibrary(goodURL, otherURL), nil)
	h.load(redirectURL)
	h.step()
	require.Equal(t, otherURL, h.eng.URL().String())
	h.step()

	h.pipe.Emit(ports.ErrorMessage(&ports.EngineError{Domain: ports.DomainStream, Code: ports.CodeDemux, Message: "bad data"}))
	h.sched.drain()

	assert.False(t, h.eng.State().ErrorOccurred)
	assert.Equal(t, goodURL, h.eng.URL().String())

	// Nothing left to fall back to.
	h.step()
	h.pipe.Emit(ports.ErrorMessage(&ports.EngineError{Domain: ports.DomainStream, Code: ports.CodeDecode, Message: "bad frame"}))
	h.sched.drain()
	assert.Equal(t, model.NetworkDecodeError, h.eng.NetworkState())
}
