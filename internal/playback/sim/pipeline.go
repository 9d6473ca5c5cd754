// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sim is a deterministic in-memory pipeline. Asynchronous work
// (preroll, flush seeks, download progress) only happens when Step or
// Advance is called, so tests control every interleaving.
package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

const defaultTotalBytes = 1 << 20

// ErrClosed is returned by operations on a closed pipeline.
var ErrClosed = errors.New("sim pipeline closed")

// SeekCall records one low-level seek.
type SeekCall struct {
	Rate  float64
	Flags ports.SeekFlags
	Start time.Duration
	Stop  time.Duration
}

// Pipeline implements ports.Pipeline.
type Pipeline struct {
	// streaming is read-held while a sync handler runs. Reaching NULL
	// waits for it, like joining a streaming thread.
	streaming sync.RWMutex

	mu     sync.Mutex
	lib    Library
	logger zerolog.Logger

	uri   string
	media Media
	known bool

	state  ports.State
	queued ports.State
	failed bool

	position    time.Duration
	rate        float64
	seekPending bool
	seekTarget  time.Duration

	download   bool
	downloaded int64

	prerolled  bool
	redirected bool
	keyDone    bool
	license    []byte

	props     map[ports.Property]any
	handlers  ports.Handlers
	seeks     []SeekCall
	setStates []ports.State
	closed    bool
}

// New returns a pipeline in the NULL state.
func New(lib Library) *Pipeline {
	return &Pipeline{
		lib:    lib,
		logger: log.WithComponent("sim"),
		state:  ports.StateNull,
		queued: ports.StateVoidPending,
		rate:   1,
		props:  map[ports.Property]any{ports.PropVolume: 1.0, ports.PropMute: false},
	}
}

// NewFactory returns a factory producing pipelines over lib. created, when
// not nil, receives every pipeline made.
func NewFactory(lib Library, created func(*Pipeline)) ports.Factory {
	return func() (ports.Pipeline, error) {
		p := New(lib)
		if created != nil {
			created(p)
		}
		return p, nil
	}
}

// outbox collects notifications while the lock is held.
type outbox struct {
	async []ports.Message
	sync  []ports.Message
}

func (o *outbox) post(msg ports.Message)     { o.async = append(o.async, msg) }
func (o *outbox) postSync(msg ports.Message) { o.sync = append(o.sync, msg) }

func (p *Pipeline) deliver(o *outbox) {
	p.mu.Lock()
	h := p.handlers
	p.mu.Unlock()
	if len(o.sync) > 0 {
		p.streaming.RLock()
		defer p.streaming.RUnlock()
	}
	for _, msg := range o.sync {
		if h.Sync != nil {
			reply := h.Sync(msg)
			if msg.Kind == ports.MsgKeyNeeded {
				p.mu.Lock()
				p.license = reply.License
				p.mu.Unlock()
			}
		}
	}
	for _, msg := range o.async {
		if h.Async != nil {
			h.Async(msg)
		}
	}
}

// transitionLocked moves the current state one level at a time.
func (p *Pipeline) transitionLocked(o *outbox, to ports.State) {
	for p.state != to {
		from := p.state
		if to > from {
			p.state++
		} else {
			p.state--
		}
		if p.state == ports.StateNull {
			p.resetLocked()
		}
		o.post(ports.StateChanged(from, p.state))
	}
}

func (p *Pipeline) resetLocked() {
	p.position = 0
	p.seekPending = false
	p.downloaded = 0
	p.prerolled = false
	p.redirected = false
	p.keyDone = false
	p.failed = false
	p.queued = ports.StateVoidPending
}

func (p *Pipeline) SetState(target ports.State) ports.StateChangeReturn {
	if target == ports.StateNull {
		// Joins goroutines still inside a sync handler.
		p.streaming.Lock()
		p.streaming.Unlock()
	}
	var o outbox
	ret := p.setState(&o, target)
	p.deliver(&o)
	return ret
}

func (p *Pipeline) setState(o *outbox, target ports.State) ports.StateChangeReturn {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStates = append(p.setStates, target)
	if p.closed {
		return ports.StateChangeFailure
	}

	if target <= ports.StateReady || target <= p.state {
		p.queued = ports.StateVoidPending
		p.transitionLocked(o, target)
		if p.failed {
			return ports.StateChangeFailure
		}
		return ports.StateChangeSuccess
	}

	if !p.known {
		p.transitionLocked(o, ports.StateReady)
		p.failed = true
		o.post(ports.ErrorMessage(&ports.EngineError{
			Domain:  ports.DomainResource,
			Code:    ports.CodeNotFound,
			Message: fmt.Sprintf("no media at %q", p.uri),
			Source:  "source",
		}))
		return ports.StateChangeFailure
	}
	if p.failed {
		return ports.StateChangeFailure
	}

	if p.media.Live {
		p.transitionLocked(o, target)
		p.prerolled = true
		return ports.StateChangeNoPreroll
	}
	if p.prerolled {
		p.transitionLocked(o, target)
		return ports.StateChangeSuccess
	}

	// Preroll runs on the next Step.
	p.transitionLocked(o, ports.StateReady)
	p.queued = target
	return ports.StateChangeAsync
}

// GetState never blocks; the timeout is ignored.
func (p *Pipeline) GetState(time.Duration) (ports.State, ports.State, ports.StateChangeReturn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.failed:
		return p.state, ports.StateVoidPending, ports.StateChangeFailure
	case p.seekPending:
		return p.state, ports.StatePaused, ports.StateChangeAsync
	case p.media.Live && p.state >= ports.StatePaused:
		return p.state, ports.StateVoidPending, ports.StateChangeNoPreroll
	default:
		return p.state, ports.StateVoidPending, ports.StateChangeSuccess
	}
}

func (p *Pipeline) QueryPosition() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state < ports.StatePaused || p.seekPending {
		return 0, false
	}
	return p.position, true
}

func (p *Pipeline) QueryDuration() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state < ports.StatePaused || p.media.Live || p.media.Duration <= 0 {
		return 0, false
	}
	return p.media.Duration, true
}

func (p *Pipeline) QueryTotalBytes() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known {
		return 0, false
	}
	if p.media.Live {
		return 0, true
	}
	if p.media.TotalBytes > 0 {
		return p.media.TotalBytes, true
	}
	return defaultTotalBytes, true
}

func (p *Pipeline) Seek(rate float64, flags ports.SeekFlags, start, stop time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.state < ports.StatePaused || p.media.Live {
		return false
	}
	p.seeks = append(p.seeks, SeekCall{Rate: rate, Flags: flags, Start: start, Stop: stop})
	p.rate = rate

	target := start
	if rate < 0 {
		target = stop
		if stop == ports.ClockTimeNone {
			target = p.media.Duration
		}
	}
	p.seekTarget = max(0, min(target, p.media.Duration))
	if flags.Has(ports.SeekFlush) {
		p.seekPending = true
	} else {
		p.position = p.seekTarget
	}
	return true
}

func (p *Pipeline) QueryBuffering() (ports.BufferingQuery, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state < ports.StatePaused || p.media.Live || !p.download {
		return ports.BufferingQuery{}, false
	}
	q := ports.BufferingQuery{Stop: p.downloaded}
	if p.downloaded > 0 {
		q.Ranges = []ports.BufferingRange{{Start: 0, Stop: p.downloaded}}
	}
	return q, true
}

func (p *Pipeline) SetProperty(name ports.Property, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	switch name {
	case ports.PropURI:
		uri, ok := value.(string)
		if !ok {
			return fmt.Errorf("uri must be a string, got %T", value)
		}
		if p.state > ports.StateReady {
			return fmt.Errorf("uri change in state %s", p.state)
		}
		p.uri = uri
		p.media, p.known = p.lib.Lookup(uri)
		p.resetLocked()
	case ports.PropDownload:
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("download must be a bool, got %T", value)
		}
		p.download = on
	}
	p.props[name] = value
	return nil
}

func (p *Pipeline) Property(name ports.Property) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name == ports.PropAudioSink {
		if p.state < ports.StatePaused {
			return nil, nil
		}
		return "sim-audio-sink", nil
	}
	v, ok := p.props[name]
	if !ok {
		return nil, fmt.Errorf("unknown property %q", name)
	}
	return v, nil
}

func (p *Pipeline) Subscribe(h ports.Handlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = h
}

func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	p.handlers = ports.Handlers{}
	return nil
}

// Step completes the pending asynchronous work: a queued preroll or a flush
// seek. It reports whether anything happened. Step may block in the
// key-needed handler and must not run on the player's control loop.
func (p *Pipeline) Step() bool {
	var o outbox
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}

	switch {
	case p.queued != ports.StateVoidPending && p.media.Redirect != nil && !p.redirected:
		p.redirected = true
		o.post(ports.Message{Kind: ports.MsgRedirect, FromPipeline: false, Redirect: p.media.Redirect})
	case p.queued != ports.StateVoidPending && p.media.Fail != nil:
		p.failed = true
		p.queued = ports.StateVoidPending
		o.post(ports.ErrorMessage(p.media.Fail))
	case p.queued != ports.StateVoidPending && len(p.media.InitData) > 0 && !p.keyDone:
		p.keyDone = true
		o.postSync(ports.Message{Kind: ports.MsgKeyNeeded, InitData: slices.Clone(p.media.InitData)})
	case p.queued != ports.StateVoidPending:
		target := p.queued
		p.queued = ports.StateVoidPending
		p.prerolled = true
		if p.download && p.media.DownloadStep == 0 {
			p.downloaded = ports.PercentMax
		}
		// async-done precedes the state-changed messages of the preroll.
		o.post(ports.AsyncDone())
		p.transitionLocked(&o, target)
		p.logger.Debug().Str(log.FieldURL, p.uri).Str(log.FieldNewState, target.String()).Msg("preroll complete")
		o.postSync(ports.Message{Kind: ports.MsgDurationChanged, FromPipeline: true})
		if p.media.Tracks != (model.Tracks{}) {
			o.post(ports.TracksChanged(p.media.Tracks))
		}
		for _, pct := range p.media.Buffering {
			o.post(ports.Buffering(pct))
		}
	case p.seekPending:
		p.seekPending = false
		p.position = p.seekTarget
		o.post(ports.AsyncDone())
	default:
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	p.deliver(&o)
	return true
}

// Advance plays d of media at the current rate and progresses the download.
// End of stream is posted when playback runs off either end.
func (p *Pipeline) Advance(d time.Duration) {
	var o outbox
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.download && p.prerolled && p.media.DownloadStep > 0 && p.downloaded < ports.PercentMax {
		p.downloaded = min(ports.PercentMax, p.downloaded+p.media.DownloadStep)
	}
	if p.state == ports.StatePlaying && !p.seekPending && !p.media.Live {
		p.position += time.Duration(float64(d) * p.rate)
		switch {
		case p.position >= p.media.Duration:
			p.position = p.media.Duration
			o.post(ports.Message{Kind: ports.MsgEOS, FromPipeline: true})
		case p.position <= 0 && p.rate < 0:
			p.position = 0
			o.post(ports.Message{Kind: ports.MsgEOS, FromPipeline: true})
		}
	}
	p.mu.Unlock()
	p.deliver(&o)
}

// SetDownloadProgress overrides the downloaded amount, in ports.PercentMax units.
func (p *Pipeline) SetDownloadProgress(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloaded = max(0, min(ports.PercentMax, n))
}

// Emit posts msg as if the pipeline raised it.
func (p *Pipeline) Emit(msg ports.Message) {
	p.deliver(&outbox{async: []ports.Message{msg}})
}

// Run drives the pipeline in real time until ctx is done.
func (p *Pipeline) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Step()
			p.Advance(tick)
		}
	}
}

// Seeks returns the low-level seeks issued so far.
func (p *Pipeline) Seeks() []SeekCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.seeks)
}

// SetStates returns every state requested so far.
func (p *Pipeline) SetStates() []ports.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.setStates)
}

// License returns the key delivered for the last key-needed condition.
func (p *Pipeline) License() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.license)
}

// PropertyValue returns the last value set for name.
func (p *Pipeline) PropertyValue(name ports.Property) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props[name]
}

// Position returns the current position.
func (p *Pipeline) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// State returns the current state.
func (p *Pipeline) State() ports.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Closed reports whether Close was called.
func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
