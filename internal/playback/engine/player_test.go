// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
	"github.com/Metrological/qtwebkit/internal/playback/sim"
	xnet "github.com/Metrological/qtwebkit/internal/platform/net"
)

// memoryPositions is a PositionRecorder kept in a map.
type memoryPositions struct {
	mu      sync.Mutex
	stored  map[string]float64
	offers  []float64
	flushes int
}

func newMemoryPositions() *memoryPositions {
	return &memoryPositions{stored: make(map[string]float64)}
}

func (m *memoryPositions) Lookup(_ context.Context, mediaURL string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.stored[mediaURL]
	return pos, ok
}

func (m *memoryPositions) Offer(mediaURL string, position float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[mediaURL] = position
	m.offers = append(m.offers, position)
}

func (m *memoryPositions) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *memoryPositions) lastOffer() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.offers) == 0 {
		return 0, false
	}
	return m.offers[len(m.offers)-1], true
}

type playerFixture struct {
	player *Player
	client *fakeClient
	pipe   *sim.Pipeline
}

func newPlayerFixture(t *testing.T, lib sim.Library, opts PlayerOptions) *playerFixture {
	t.Helper()
	f := &playerFixture{client: newFakeClient()}
	opts.Engine.FillPollInterval = time.Millisecond
	f.player = NewPlayer(f.client, sim.NewFactory(lib, func(p *sim.Pipeline) { f.pipe = p }), opts)
	return f
}

func (f *playerFixture) load(t *testing.T, url string) {
	t.Helper()
	require.NoError(t, f.player.Load(context.Background(), url))
	require.NotNil(t, f.pipe)
}

func keyedLibrary() sim.Library {
	return sim.Library{Media: map[string]sim.Media{
		clipURL: {Duration: 10 * time.Second, InitData: []byte("pssh-box")},
	}}
}

func TestPlayerKeyNeededWithoutHandler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, keyedLibrary(), PlayerOptions{})
	defer func() { require.NoError(t, f.player.Close(ctx)) }()
	f.load(t, clipURL)

	// Returns once the request went unclaimed.
	require.True(t, f.pipe.Step())
	assert.Nil(t, f.pipe.License())
	assert.Equal(t, 1, f.client.Count("key"))

	_, err := f.player.GenerateKeyRequest(ctx, "org.w3.clearkey")
	assert.ErrorIs(t, err, model.ErrNoKeySession)

	// Playback continues without the key.
	require.True(t, f.pipe.Step())
	require.Eventually(t, func() bool {
		s, err := f.player.Snapshot(ctx)
		return err == nil && s.ReadyState == model.HaveEnoughData.String()
	}, time.Second, time.Millisecond)
}

func TestPlayerKeyDeliveredLater(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, keyedLibrary(), PlayerOptions{})
	defer func() { require.NoError(t, f.player.Close(ctx)) }()
	f.client.onKey = func([]byte) bool { return true }
	f.load(t, clipURL)

	stepped := make(chan struct{})
	go func() {
		defer close(stepped)
		f.pipe.Step()
	}()

	var req KeyRequestView
	require.Eventually(t, func() bool {
		s, err := f.player.Snapshot(ctx)
		if err != nil || s.KeyRequest == nil {
			return false
		}
		req = *s.KeyRequest
		return true
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte("pssh-box"), req.InitData)

	_, err := f.player.GenerateKeyRequest(ctx, "com.example.unknown")
	assert.ErrorIs(t, err, model.ErrUnsupportedKeySystem)
	got, err := f.player.GenerateKeyRequest(ctx, "org.w3.clearkey")
	require.NoError(t, err)
	assert.Equal(t, req.SessionID, got.SessionID)

	assert.ErrorIs(t, f.player.UpdateKey(ctx, "another-session", []byte("k")), model.ErrNoKeySession)
	require.NoError(t, f.player.UpdateKey(ctx, req.SessionID, []byte("license")))
	<-stepped
	assert.Equal(t, []byte("license"), f.pipe.License())

	// The request was released exactly once.
	assert.ErrorIs(t, f.player.UpdateKey(ctx, req.SessionID, []byte("again")), model.ErrNoKeySession)
	released, err := f.player.ReleaseKeys(ctx)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestPlayerReleaseKeysUnblocksPipeline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, keyedLibrary(), PlayerOptions{})
	defer func() { require.NoError(t, f.player.Close(ctx)) }()
	f.client.onKey = func([]byte) bool { return true }
	f.load(t, clipURL)

	stepped := make(chan struct{})
	go func() {
		defer close(stepped)
		f.pipe.Step()
	}()
	require.Eventually(t, func() bool {
		s, err := f.player.Snapshot(ctx)
		return err == nil && s.KeyRequest != nil
	}, time.Second, time.Millisecond)

	released, err := f.player.ReleaseKeys(ctx)
	require.NoError(t, err)
	assert.True(t, released)
	<-stepped
	assert.Nil(t, f.pipe.License())
}

func TestPlayerCloseWhileKeyRequestBlocked(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, keyedLibrary(), PlayerOptions{})
	f.client.onKey = func([]byte) bool { return true }
	f.load(t, clipURL)

	stepped := make(chan struct{})
	go func() {
		defer close(stepped)
		f.pipe.Step()
	}()
	require.Eventually(t, func() bool {
		s, err := f.player.Snapshot(ctx)
		return err == nil && s.KeyRequest != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, f.player.Close(ctx))
	select {
	case <-stepped:
	case <-time.After(time.Second):
		t.Fatal("pipeline goroutine still blocked after close")
	}
	assert.True(t, f.pipe.Closed())
	assert.Nil(t, f.pipe.License())
}

func TestPlayerRejectsCallsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, clipLibrary(), PlayerOptions{})
	require.NoError(t, f.player.Close(ctx))
	require.NoError(t, f.player.Close(ctx))

	assert.ErrorIs(t, f.player.Play(ctx), model.ErrClosed)
	_, err := f.player.CurrentTime(ctx)
	assert.ErrorIs(t, err, model.ErrClosed)
}

func TestPlayerReadsAbandonedOnCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newPlayerFixture(t, clipLibrary(), PlayerOptions{})
	defer func() { require.NoError(t, f.player.Close(context.Background())) }()
	f.load(t, clipURL)

	unblock := make(chan struct{})
	require.True(t, f.player.loop.Post(func() { <-unblock }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := f.player.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	d, err := f.player.Duration(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = f.player.GenerateKeyRequest(ctx, "org.w3.clearkey")
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned reads still run once the loop is free.
	close(unblock)
	require.NoError(t, f.player.loop.Call(context.Background(), func() {}))
	assert.Equal(t, Snapshot{}, s)
	assert.Zero(t, d)

	got, err := f.player.Duration(context.Background())
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, 1) || got == 10, "duration %v", got)
}

func TestPlayerReloadWhileKeyRequestBlocked(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, keyedLibrary(), PlayerOptions{})
	defer func() { require.NoError(t, f.player.Close(ctx)) }()
	f.client.onKey = func([]byte) bool { return true }
	f.load(t, clipURL)

	stepped := make(chan struct{})
	go func() {
		defer close(stepped)
		f.pipe.Step()
	}()
	require.Eventually(t, func() bool {
		s, err := f.player.Snapshot(ctx)
		return err == nil && s.KeyRequest != nil
	}, time.Second, time.Millisecond)

	// Reaching NULL joins the blocked streaming goroutine.
	loaded := make(chan error, 1)
	go func() { loaded <- f.player.Load(ctx, clipURL) }()
	select {
	case err := <-loaded:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reload deadlocked on the blocked key request")
	}
	<-stepped
	assert.Nil(t, f.pipe.License())

	s, err := f.player.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, s.KeyRequest)
	assert.Contains(t, f.pipe.SetStates(), ports.StateNull)
}

func TestPlayerForwardsTracks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	lib := sim.Library{Media: map[string]sim.Media{
		clipURL: {Duration: 10 * time.Second, Tracks: model.Tracks{Video: 1, Audio: 1}},
	}}
	f := newPlayerFixture(t, lib, PlayerOptions{})
	defer func() { require.NoError(t, f.player.Close(ctx)) }()
	f.load(t, clipURL)
	f.pipe.Step()

	require.Eventually(t, func() bool {
		s, err := f.player.Snapshot(ctx)
		return err == nil && s.HasVideo && s.HasAudio
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, f.client.Count("tracks"))
}

func TestPlayerSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, clipLibrary(), PlayerOptions{})
	defer func() { require.NoError(t, f.player.Close(ctx)) }()
	f.load(t, clipURL)
	f.pipe.Step()

	var s Snapshot
	require.Eventually(t, func() bool {
		var err error
		s, err = f.player.Snapshot(ctx)
		return err == nil && s.NetworkState == model.NetworkLoaded.String()
	}, time.Second, time.Millisecond)

	assert.Equal(t, f.player.SessionID(), s.SessionID)
	assert.Equal(t, clipURL, s.URL)
	assert.Equal(t, model.HaveEnoughData.String(), s.ReadyState)
	assert.True(t, s.Paused)
	assert.True(t, s.DurationKnown)
	assert.Equal(t, 10.0, s.Duration)
	assert.Equal(t, model.TimeRanges{{Start: 0, End: 10}}, s.Buffered)
	assert.Equal(t, model.TimeRanges{{Start: 0, End: 10}}, s.Seekable)
	assert.False(t, s.HasVideo, "clip announces no tracks")
	assert.Equal(t, 1.0, s.Volume)
	assert.Nil(t, s.KeyRequest)
}

func TestPlayerResumesRecordedPosition(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	positions := newMemoryPositions()
	positions.Offer(clipURL, 4)
	f := newPlayerFixture(t, clipLibrary(), PlayerOptions{Positions: positions, CheckpointInterval: time.Hour})
	f.load(t, clipURL)

	// Preroll, then complete the resume seek once it was issued.
	require.Eventually(t, func() bool {
		f.pipe.Step()
		s, err := f.player.Snapshot(ctx)
		return err == nil && !s.Seeking && s.CurrentTime == 4
	}, time.Second, time.Millisecond)
	require.Len(t, f.pipe.Seeks(), 1)

	require.NoError(t, f.player.Seek(ctx, 6))
	require.Eventually(t, func() bool {
		f.pipe.Step()
		s, err := f.player.Snapshot(ctx)
		return err == nil && !s.Seeking
	}, time.Second, time.Millisecond)
	require.NoError(t, f.player.Pause(ctx))

	last, ok := positions.lastOffer()
	require.True(t, ok)
	assert.Equal(t, 6.0, last)

	require.NoError(t, f.player.Close(ctx))
	positions.mu.Lock()
	defer positions.mu.Unlock()
	assert.Equal(t, 1, positions.flushes)
}

func TestPlayerWithoutResumeRecordsNothing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, clipLibrary(), PlayerOptions{})
	f.load(t, clipURL)
	require.NoError(t, f.player.Seek(ctx, 3))
	assert.Empty(t, f.pipe.Seeks(), "seek before preroll is deferred")

	f.pipe.Step()
	require.Eventually(t, func() bool {
		return len(f.pipe.Seeks()) == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, f.player.Close(ctx))
}

func TestPlayerReconfigure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := newPlayerFixture(t, clipLibrary(), PlayerOptions{})
	defer func() { require.NoError(t, f.player.Close(ctx)) }()

	policy := xnet.OriginPolicy{AllowCrossOrigin: true, Schemes: []string{"https"}}
	require.NoError(t, f.player.Reconfigure(ctx, Reconfig{MaxRate: 2, PreservesPitch: true, OriginPolicy: policy}))

	require.NoError(t, f.player.SetRate(ctx, 5))
	s, err := f.player.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Rate)

	require.NoError(t, f.player.loop.Call(ctx, func() {
		assert.Equal(t, policy, f.player.eng.opts.OriginPolicy)
		assert.True(t, f.player.eng.opts.PreservesPitch)
	}))

	// A non-positive limit keeps the previous clamp.
	require.NoError(t, f.player.Reconfigure(ctx, Reconfig{MaxRate: 0, OriginPolicy: policy}))
	require.NoError(t, f.player.SetRate(ctx, 8))
	s, err = f.player.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Rate)
}
