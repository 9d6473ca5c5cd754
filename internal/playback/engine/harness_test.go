// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/sim"
)

// fakeClient records every notification as a short string.
type fakeClient struct {
	mu      sync.Mutex
	events  []string
	stalls  []error
	rate    float64
	looping bool
	onKey   func(initData []byte) bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{rate: 1}
}

func (c *fakeClient) record(ev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *fakeClient) NetworkStateChanged(s model.NetworkState) { c.record("network:" + s.String()) }
func (c *fakeClient) ReadyStateChanged(s model.ReadyState)     { c.record("ready:" + s.String()) }
func (c *fakeClient) TimeChanged()                             { c.record("time") }
func (c *fakeClient) DurationChanged()                         { c.record("duration") }
func (c *fakeClient) RateChanged()                             { c.record("rate") }
func (c *fakeClient) VolumeChanged(float64)                    { c.record("volume") }
func (c *fakeClient) MuteChanged(bool)                         { c.record("mute") }
func (c *fakeClient) PlaybackStateChanged()                    { c.record("playback") }
func (c *fakeClient) TracksChanged(model.Tracks)               { c.record("tracks") }

func (c *fakeClient) KeyNeeded(initData []byte) bool {
	c.record("key")
	c.mu.Lock()
	onKey := c.onKey
	c.mu.Unlock()
	if onKey == nil {
		return false
	}
	return onKey(initData)
}

func (c *fakeClient) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

func (c *fakeClient) Looping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.looping
}

func (c *fakeClient) Stalled(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalls = append(c.stalls, err)
}

func (c *fakeClient) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

// EventsWithPrefix returns the recorded events of one kind.
func (c *fakeClient) EventsWithPrefix(prefix string) []string {
	var out []string
	for _, ev := range c.Events() {
		if strings.HasPrefix(ev, prefix) {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeClient) Count(ev string) int {
	n := 0
	for _, e := range c.Events() {
		if e == ev {
			n++
		}
	}
	return n
}

func (c *fakeClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// manualScheduler runs posted work only when the test drains it.
type manualScheduler struct {
	mu     sync.Mutex
	queue  []func()
	timers []*manualTimer
}

func (s *manualScheduler) Post(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, fn)
	return true
}

func (s *manualScheduler) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	s.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *manualScheduler) NewRepeatingTimer(fire func()) RepeatingTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{fire: fire}
	s.timers = append(s.timers, t)
	return t
}

// drain runs queued work, including work queued while draining.
func (s *manualScheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}

// tick fires every active timer once.
func (s *manualScheduler) tick() {
	s.mu.Lock()
	timers := slices.Clone(s.timers)
	s.mu.Unlock()
	for _, t := range timers {
		if t.IsActive() {
			t.fire()
		}
	}
}

type manualTimer struct {
	fire     func()
	active   bool
	interval time.Duration
}

func (t *manualTimer) StartRepeating(interval time.Duration) {
	t.active = true
	t.interval = interval
}

func (t *manualTimer) Stop()          { t.active = false }
func (t *manualTimer) IsActive() bool { return t.active }

type harness struct {
	t      *testing.T
	sched  *manualScheduler
	client *fakeClient
	eng    *Engine
	pipe   *sim.Pipeline
}

const clipURL = "http://media.example/clip.mp4"

func clipLibrary() sim.Library {
	return sim.Library{Media: map[string]sim.Media{
		clipURL: {Duration: 10 * time.Second},
	}}
}

func newHarness(t *testing.T, lib sim.Library, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{t: t, sched: &manualScheduler{}, client: newFakeClient()}
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	h.eng = New(h.client, sim.NewFactory(lib, func(p *sim.Pipeline) { h.pipe = p }), h.sched, opts)
	t.Cleanup(func() { _ = h.eng.Close() })
	return h
}

func (h *harness) load(url string) {
	h.t.Helper()
	require.NoError(h.t, h.eng.Load(url))
	h.sched.drain()
}

func (h *harness) step() {
	h.pipe.Step()
	h.sched.drain()
}

func (h *harness) fill() {
	h.sched.tick()
	h.sched.drain()
}

func (h *harness) advance(d time.Duration) {
	h.pipe.Advance(d)
	h.sched.drain()
}

// ready loads the clip and brings it to a fully downloaded PAUSED state.
func (h *harness) ready() {
	h.t.Helper()
	h.load(clipURL)
	h.step()
	h.fill()
	require.Equal(h.t, model.HaveEnoughData, h.eng.ReadyState())
}

func (h *harness) play() {
	h.t.Helper()
	require.NoError(h.t, h.eng.Play())
	h.sched.drain()
}
