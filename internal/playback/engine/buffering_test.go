// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
	"github.com/Metrological/qtwebkit/internal/playback/sim"
)

func progressiveLibrary() sim.Library {
	return sim.Library{Media: map[string]sim.Media{
		clipURL: {Duration: 8 * time.Second, DownloadStep: ports.PercentMax / 4},
	}}
}

func TestMaxTimeLoadedNeverDecreases(t *testing.T) {
	h := newHarness(t, progressiveLibrary(), nil)
	h.load(clipURL)
	h.step()

	var seen []float64
	for _, progress := range []int64{ports.PercentMax / 4, ports.PercentMax / 2, ports.PercentMax / 8, ports.PercentMax * 3 / 4} {
		h.pipe.SetDownloadProgress(progress)
		h.fill()
		seen = append(seen, h.eng.MaxTimeLoaded())
	}
	assert.Equal(t, []float64{2, 4, 4, 6}, seen)
	assert.False(t, h.eng.buf.DownloadFinished)
	assert.True(t, h.eng.fillTimer.IsActive())

	h.pipe.SetDownloadProgress(ports.PercentMax)
	h.fill()
	assert.Equal(t, 8.0, h.eng.MaxTimeLoaded())
	assert.True(t, h.eng.buf.DownloadFinished)
	assert.False(t, h.eng.fillTimer.IsActive(), "polling stops once downloaded")
	assert.Equal(t, model.NetworkLoaded, h.eng.NetworkState())
}

func TestBufferedUsesPipelineRanges(t *testing.T) {
	h := newHarness(t, progressiveLibrary(), nil)
	h.load(clipURL)
	h.step()
	h.pipe.SetDownloadProgress(ports.PercentMax / 2)

	want := model.TimeRanges{{Start: 0, End: 4}}
	if diff := cmp.Diff(want, h.eng.Buffered()); diff != "" {
		t.Fatalf("buffered mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferedFallsBackToMaxTimeLoaded(t *testing.T) {
	h := newHarness(t, progressiveLibrary(), nil)
	h.load(clipURL)
	h.step()
	h.pipe.SetDownloadProgress(ports.PercentMax / 4)
	h.fill()

	// No discrete ranges once the pipeline reports nothing downloaded.
	h.pipe.SetDownloadProgress(0)
	assert.Equal(t, model.TimeRanges{{Start: 0, End: 2}}, h.eng.Buffered())
}

func TestBufferedEmptyWithoutDuration(t *testing.T) {
	lib := sim.Library{Media: map[string]sim.Media{clipURL: {}}}
	h := newHarness(t, lib, nil)
	h.load(clipURL)
	h.step()

	assert.True(t, math.IsInf(h.eng.Duration(), 1))
	assert.Empty(t, h.eng.Buffered())
}

func TestDidLoadingProgress(t *testing.T) {
	h := newHarness(t, progressiveLibrary(), nil)
	h.load(clipURL)
	h.step()

	h.pipe.SetDownloadProgress(ports.PercentMax / 4)
	h.fill()
	assert.True(t, h.eng.DidLoadingProgress())
	assert.False(t, h.eng.DidLoadingProgress())

	h.pipe.SetDownloadProgress(ports.PercentMax / 2)
	h.fill()
	assert.True(t, h.eng.DidLoadingProgress())
}

func TestDownloadBufferingOnlyForPreloadAuto(t *testing.T) {
	h := newHarness(t, progressiveLibrary(), func(o *Options) { o.Preload = model.PreloadMetadata })
	h.load(clipURL)
	h.step()
	assert.False(t, h.eng.fillTimer.IsActive())

	h.eng.SetPreload(model.PreloadAuto)
	assert.True(t, h.eng.fillTimer.IsActive())
	assert.Equal(t, true, h.pipe.PropertyValue(ports.PropDownload))

	// An active download is not switched off.
	h.eng.SetPreload(model.PreloadMetadata)
	assert.Equal(t, true, h.pipe.PropertyValue(ports.PropDownload))
}

func TestDurationChangeNotifiesOnlyKnownChanges(t *testing.T) {
	h := newHarness(t, clipLibrary(), nil)
	h.ready()
	require.Zero(t, h.client.Count("duration"))

	h.eng.HandleSyncMessage(ports.Message{Kind: ports.MsgDurationChanged})
	h.sched.drain()
	assert.Zero(t, h.client.Count("duration"), "unchanged duration")
	assert.Equal(t, 10.0, h.eng.Duration())
}

func TestDurationChangeOnAsyncIngress(t *testing.T) {
	h := newHarness(t, clipLibrary(), nil)
	h.ready()
	h.eng.duration = 4

	h.eng.HandleMessage(ports.Message{Kind: ports.MsgDurationChanged, FromPipeline: true})
	h.sched.drain()

	assert.Equal(t, 10.0, h.eng.duration)
	assert.Equal(t, 1, h.client.Count("duration"))
}

func TestSeekableRange(t *testing.T) {
	t.Run("clip", func(t *testing.T) {
		h := newHarness(t, clipLibrary(), nil)
		assert.Zero(t, h.eng.MaxTimeSeekable(), "nothing loaded")
		h.ready()
		assert.Equal(t, 10.0, h.eng.MaxTimeSeekable())
		if diff := cmp.Diff(model.TimeRanges{{Start: 0, End: 10}}, h.eng.Seekable()); diff != "" {
			t.Errorf("seekable mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("live", func(t *testing.T) {
		lib := sim.Library{Media: map[string]sim.Media{"http://live.example/tv": {Live: true}}}
		h := newHarness(t, lib, nil)
		h.load("http://live.example/tv")
		assert.Zero(t, h.eng.MaxTimeSeekable())
		assert.Empty(t, h.eng.Seekable())
	})
	t.Run("failed", func(t *testing.T) {
		h := newHarness(t, clipLibrary(), nil)
		h.load("http://media.example/missing.mp4")
		assert.Zero(t, h.eng.MaxTimeSeekable())
		assert.Empty(t, h.eng.Seekable())
	})
}

func TestTracksReportedOnceAndResetOnLoad(t *testing.T) {
	tracks := model.Tracks{Video: 1, Audio: 2}
	lib := sim.Library{Media: map[string]sim.Media{
		clipURL: {Duration: 10 * time.Second, Tracks: tracks},
	}}
	h := newHarness(t, lib, nil)
	h.ready()
	assert.Equal(t, tracks, h.eng.Tracks())
	assert.True(t, h.eng.Tracks().HasVideo())
	assert.Equal(t, 1, h.client.Count("tracks"))

	h.eng.HandleMessage(ports.TracksChanged(tracks))
	assert.Equal(t, 1, h.client.Count("tracks"), "unchanged counts are not reported")

	require.NoError(t, h.eng.Load(clipURL))
	assert.Equal(t, model.Tracks{}, h.eng.Tracks())
}
