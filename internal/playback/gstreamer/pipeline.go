// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build gstreamer

package gstreamer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

const (
	elementName  = "mediaplayer"
	busPoll      = 50 * time.Millisecond
	flagsDefault = "video+audio+text+soft-volume"
)

// ErrClosed is returned by operations on a closed pipeline.
var ErrClosed = errors.New("gstreamer pipeline closed")

var initOnce sync.Once

// Pipeline drives one playbin element.
type Pipeline struct {
	elem   *gst.Element
	logger zerolog.Logger

	mu       sync.Mutex
	handlers ports.Handlers
	download bool
	closed   bool

	stop chan struct{}
	done chan struct{}
}

// NewFactory returns a factory creating playbin pipelines.
func NewFactory() ports.Factory {
	return func() (ports.Pipeline, error) {
		return New()
	}
}

// New creates a playbin in the NULL state. Key-needed and duration
// messages are handled on the posting streaming thread; everything else is
// read from the bus by a separate goroutine.
func New() (*Pipeline, error) {
	initOnce.Do(func() { gst.Init(nil) })

	elem, err := gst.NewElementWithName("playbin", elementName)
	if err != nil {
		return nil, fmt.Errorf("create playbin: %w", err)
	}
	p := &Pipeline{
		elem:   elem,
		logger: log.WithComponent("gstreamer"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, signal := range []string{"video-changed", "audio-changed", "text-changed"} {
		if _, err := elem.Connect(signal, func(*gst.Element) { p.tracksChanged() }); err != nil {
			return nil, fmt.Errorf("connect %s: %w", signal, err)
		}
	}
	bus := elem.GetBus()
	bus.SetSyncHandler(p.syncMessage)
	go p.readBus(bus)
	return p, nil
}

// tracksChanged reports the stream counts after playbin announced a change.
// It runs on a streaming thread.
func (p *Pipeline) tracksChanged() {
	h := p.currentHandlers()
	if h.Async == nil {
		return
	}
	h.Async(ports.TracksChanged(model.Tracks{
		Video: p.intProperty("n-video"),
		Audio: p.intProperty("n-audio"),
		Text:  p.intProperty("n-text"),
	}))
}

func (p *Pipeline) intProperty(name string) int {
	v, err := p.elem.GetProperty(name)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case uint:
		return int(n)
	case uint32:
		return int(n)
	}
	return 0
}

func toGst(s ports.State) gst.State {
	switch s {
	case ports.StateNull:
		return gst.StateNull
	case ports.StateReady:
		return gst.StateReady
	case ports.StatePaused:
		return gst.StatePaused
	case ports.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.StateVoidPending
	}
}

func fromGst(s gst.State) ports.State {
	switch s {
	case gst.StateNull:
		return ports.StateNull
	case gst.StateReady:
		return ports.StateReady
	case gst.StatePaused:
		return ports.StatePaused
	case gst.StatePlaying:
		return ports.StatePlaying
	default:
		return ports.StateVoidPending
	}
}

func (p *Pipeline) SetState(target ports.State) ports.StateChangeReturn {
	if p.isClosed() {
		return ports.StateChangeFailure
	}
	if err := p.elem.SetState(toGst(target)); err != nil {
		p.logger.Debug().Err(err).Str("target", target.String()).Msg("state change failed")
		return ports.StateChangeFailure
	}
	_, _, ret := p.GetState(0)
	return ret
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func fromGstReturn(ret gst.StateChangeReturn) ports.StateChangeReturn {
	switch ret {
	case gst.StateChangeSuccess:
		return ports.StateChangeSuccess
	case gst.StateChangeAsync:
		return ports.StateChangeAsync
	case gst.StateChangeNoPreroll:
		return ports.StateChangeNoPreroll
	default:
		return ports.StateChangeFailure
	}
}

// GetState asks the element itself, so flushing seeks and lost states
// report ASYNC until the pipeline prerolls again.
func (p *Pipeline) GetState(timeout time.Duration) (ports.State, ports.State, ports.StateChangeReturn) {
	if p.isClosed() {
		return fromGst(p.elem.GetCurrentState()), ports.StateVoidPending, ports.StateChangeFailure
	}
	ret, pending := p.elem.GetState(gst.StateVoidPending, gst.ClockTime(timeout.Nanoseconds()))
	return fromGst(p.elem.GetCurrentState()), fromGst(pending), fromGstReturn(ret)
}

func (p *Pipeline) QueryPosition() (time.Duration, bool) {
	ok, pos := p.elem.QueryPosition(gst.FormatTime)
	return time.Duration(pos), ok && pos >= 0
}

func (p *Pipeline) QueryDuration() (time.Duration, bool) {
	ok, d := p.elem.QueryDuration(gst.FormatTime)
	return time.Duration(d), ok && d >= 0
}

func (p *Pipeline) QueryTotalBytes() (int64, bool) {
	ok, n := p.elem.QueryDuration(gst.FormatBytes)
	return n, ok && n > 0
}

func (p *Pipeline) Seek(rate float64, flags ports.SeekFlags, start, stop time.Duration) bool {
	var gflags gst.SeekFlags
	if flags.Has(ports.SeekFlush) {
		gflags |= gst.SeekFlagFlush
	}
	if flags.Has(ports.SeekAccurate) {
		gflags |= gst.SeekFlagAccurate
	}
	if flags.Has(ports.SeekKeyUnit) {
		gflags |= gst.SeekFlagKeyUnit
	}
	startType, stopType := gst.SeekTypeSet, gst.SeekTypeSet
	if start == ports.ClockTimeNone {
		startType, start = gst.SeekTypeNone, 0
	}
	if stop == ports.ClockTimeNone {
		stopType, stop = gst.SeekTypeNone, 0
	}
	return p.elem.Seek(rate, gst.FormatTime, gflags, startType, int64(start), stopType, int64(stop))
}

func (p *Pipeline) QueryBuffering() (ports.BufferingQuery, bool) {
	q := gst.NewBufferingQuery(gst.FormatPercent)
	if !p.elem.Query(q) {
		return ports.BufferingQuery{}, false
	}
	_, _, stop, _ := q.ParseBufferingRange()
	out := ports.BufferingQuery{Stop: stop}
	for i := uint(0); i < q.GetNBufferingRanges(); i++ {
		start, end := q.ParseNthBufferingRange(i)
		out.Ranges = append(out.Ranges, ports.BufferingRange{Start: start, Stop: end})
	}
	return out, true
}

func (p *Pipeline) SetProperty(name ports.Property, value any) error {
	switch name {
	case ports.PropDownload:
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("property %s: want bool, got %T", name, value)
		}
		p.mu.Lock()
		p.download = on
		p.mu.Unlock()
		flags := flagsDefault
		if on {
			flags += "+download"
		}
		p.elem.SetArg("flags", flags)
		return nil
	case ports.PropAudioSink:
		sinkName, ok := value.(string)
		if !ok {
			return fmt.Errorf("property %s: want element name, got %T", name, value)
		}
		sink, err := gst.NewElement(sinkName)
		if err != nil {
			return fmt.Errorf("create audio sink %s: %w", sinkName, err)
		}
		return p.elem.SetProperty(string(name), sink)
	default:
		return p.elem.SetProperty(string(name), value)
	}
}

func (p *Pipeline) Property(name ports.Property) (any, error) {
	if name == ports.PropDownload {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.download, nil
	}
	return p.elem.GetProperty(string(name))
}

func (p *Pipeline) Subscribe(h ports.Handlers) {
	p.mu.Lock()
	p.handlers = h
	p.mu.Unlock()
}

func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	p.handlers = ports.Handlers{}
	p.mu.Unlock()

	close(p.stop)
	<-p.done
	return p.elem.SetState(gst.StateNull)
}

func (p *Pipeline) currentHandlers() ports.Handlers {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers
}

// syncMessage runs on the thread that posted msg. A key-needed message
// blocks that thread until the sync handler returns, which holds back the
// decryptor until a license is delivered or the cycle is abandoned.
func (p *Pipeline) syncMessage(msg *gst.Message) gst.BusSyncReply {
	var out ports.Message
	switch msg.Type() {
	case gst.MessageDurationChanged:
		out = ports.Message{Kind: ports.MsgDurationChanged, FromPipeline: msg.Source() == elementName}
	case gst.MessageElement:
		s := msg.GetStructure()
		if s == nil {
			return gst.BusPass
		}
		kind, ok := elementKind(s.Name())
		if !ok || !onPostingThread(kind) {
			return gst.BusPass
		}
		out = ports.Message{Kind: kind}
		if v, err := s.GetValue(fieldInitData); err == nil {
			out.InitData, _ = v.([]byte)
		}
	default:
		return gst.BusPass
	}

	h := p.currentHandlers()
	if h.Sync != nil {
		reply := h.Sync(out)
		if out.Kind == ports.MsgKeyNeeded {
			p.deliverLicense(reply.License)
		}
	}
	return gst.BusDrop
}

// readBus translates the remaining bus messages until Close.
func (p *Pipeline) readBus(bus *gst.Bus) {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		msg := bus.TimedPop(gst.ClockTime(busPoll.Nanoseconds()))
		if msg == nil {
			continue
		}
		if out, ok := p.translate(msg); ok {
			if h := p.currentHandlers(); h.Async != nil {
				h.Async(out)
			}
		}
	}
}

func (p *Pipeline) translate(msg *gst.Message) (ports.Message, bool) {
	fromPipeline := msg.Source() == elementName
	switch msg.Type() {
	case gst.MessageStateChanged:
		oldState, newState := msg.ParseStateChanged()
		return ports.Message{Kind: ports.MsgStateChanged, FromPipeline: fromPipeline, OldState: fromGst(oldState), NewState: fromGst(newState)}, true
	case gst.MessageAsyncDone:
		return ports.Message{Kind: ports.MsgAsyncDone, FromPipeline: fromPipeline}, true
	case gst.MessageBuffering:
		return ports.Buffering(msg.ParseBuffering()), true
	case gst.MessageEOS:
		return ports.Message{Kind: ports.MsgEOS, FromPipeline: fromPipeline}, true
	case gst.MessageRequestState:
		return ports.Message{Kind: ports.MsgRequestState, RequestedState: fromGst(msg.ParseRequestState())}, true
	case gst.MessageError:
		gerr := msg.ParseError()
		return ports.ErrorMessage(ClassifyError(msg.Source(), gerr.Error(), gerr.DebugString())), true
	case gst.MessageElement:
		return p.redirectMessage(msg)
	default:
		return ports.Message{}, false
	}
}

// redirectMessage decodes a redirect element structure.
func (p *Pipeline) redirectMessage(msg *gst.Message) (ports.Message, bool) {
	s := msg.GetStructure()
	if s == nil {
		return ports.Message{}, false
	}
	if kind, ok := elementKind(s.Name()); !ok || kind != ports.MsgRedirect {
		return ports.Message{}, false
	}
	r := &ports.Redirect{}
	if v, err := s.GetValue(fieldNewLocation); err == nil {
		r.NewLocation, _ = v.(string)
	}
	if v, err := s.GetValue(fieldLocations); err == nil {
		r.Locations, _ = v.([]string)
	}
	return ports.Message{Kind: ports.MsgRedirect, FromPipeline: msg.Source() == elementName, Redirect: r}, true
}

func (p *Pipeline) deliverLicense(license []byte) {
	if len(license) == 0 {
		return
	}
	s := gst.NewStructure(structLicense)
	if err := s.SetValue(fieldLicensePayload, license); err != nil {
		p.logger.Warn().Err(err).Msg("license structure rejected")
		return
	}
	if !p.elem.SendEvent(gst.NewCustomEvent(gst.EventTypeCustomDownstreamOOB, s)) {
		p.logger.Warn().Msg("license event not handled")
	}
}
