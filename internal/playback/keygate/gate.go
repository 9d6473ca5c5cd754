// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package keygate implements the rendezvous between a pipeline goroutine that
// needs decryption keys and the player's control loop.
//
// Each key-needed cycle gets a generation number and a one-slot reply
// channel. The cycle ends exactly once: by a delivered key, by the absence of
// a handler, or by abandonment on teardown. Late releases aimed at an older
// generation are dropped.
package keygate

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	"github.com/Metrological/qtwebkit/internal/playback/fsm"
	"github.com/Metrological/qtwebkit/internal/playback/model"
)

// State is the state of the current key exchange cycle.
type State string

const (
	StateIdle             State = "IDLE"
	StateKeyNeeded        State = "KEY_NEEDED"
	StateAwaitingDispatch State = "AWAITING_DISPATCH"
	StateAwaitingKey      State = "AWAITING_KEY"
	StateKeyDelivered     State = "KEY_DELIVERED"
	StateNoHandler        State = "NO_HANDLER"
	StateAbandoned        State = "ABANDONED"
)

// IsTerminal reports whether the cycle has been released.
func (s State) IsTerminal() bool {
	return cycleTable.Terminal(s)
}

type event string

const (
	evKeyNeeded event = "key_needed"
	evDispatch  event = "dispatch"
	evHandled   event = "handled"
	evUnhandled event = "unhandled"
	evDeliver   event = "deliver"
	evAbandon   event = "abandon"
)

var cycleTable = fsm.MustTable([]fsm.Transition[State, event]{
	{From: StateIdle, Event: evKeyNeeded, To: StateKeyNeeded},
	{From: StateKeyNeeded, Event: evDispatch, To: StateAwaitingDispatch},
	{From: StateKeyNeeded, Event: evAbandon, To: StateAbandoned},
	{From: StateAwaitingDispatch, Event: evHandled, To: StateAwaitingKey},
	{From: StateAwaitingDispatch, Event: evUnhandled, To: StateNoHandler},
	// A handler may deliver the key before it returns.
	{From: StateAwaitingDispatch, Event: evDeliver, To: StateKeyDelivered},
	{From: StateAwaitingDispatch, Event: evAbandon, To: StateAbandoned},
	{From: StateAwaitingKey, Event: evDeliver, To: StateKeyDelivered},
	{From: StateAwaitingKey, Event: evAbandon, To: StateAbandoned},
}, StateKeyDelivered, StateNoHandler, StateAbandoned)

// Request describes one key-needed cycle.
type Request struct {
	Generation uint64
	SessionID  string
	InitData   []byte
}

// Outcome is what the blocked pipeline goroutine receives.
type Outcome struct {
	Generation uint64
	State      State
	License    []byte
}

// DispatchFunc runs fn on the control loop and waits for it to return. It
// must give up when ctx is done, which happens once the cycle is released.
type DispatchFunc func(ctx context.Context, fn func()) error

// Handler surfaces a key request to the application. It runs on the control
// loop and returns false when nobody claimed the request.
type Handler func(Request) bool

type cycle struct {
	req     Request
	machine *fsm.Machine[State, event]
	reply   chan Outcome
	ctx     context.Context
	cancel  context.CancelFunc
}

// Gate is the key exchange rendezvous of one player.
type Gate struct {
	mu     sync.Mutex
	gen    uint64
	cur    *cycle
	last   State
	closed bool
	logger zerolog.Logger
}

// New returns an idle gate.
func New() *Gate {
	return &Gate{
		last:   StateIdle,
		logger: log.WithComponent("keygate"),
	}
}

// Await is called by the pipeline goroutine when it needs a key. It blocks
// until the cycle is released. ctx cancellation abandons the cycle.
func (g *Gate) Await(ctx context.Context, initData []byte, dispatch DispatchFunc, handler Handler) Outcome {
	c, ok := g.open(initData)
	if !ok {
		return Outcome{State: StateAbandoned}
	}

	err := dispatch(c.ctx, func() {
		if !g.isCurrent(c) {
			return
		}
		handled := handler != nil && handler(c.req)

		g.mu.Lock()
		defer g.mu.Unlock()
		if g.cur != c {
			return
		}
		if handled {
			g.advanceLocked(c, evHandled)
			return
		}
		g.finishLocked(c, evUnhandled, nil)
	})
	if err != nil && c.ctx.Err() == nil {
		g.logger.Warn().Err(err).
			Uint64(log.FieldGeneration, c.req.Generation).
			Str(log.FieldEvent, "keygate.dispatch_failed").
			Msg("control loop unavailable, abandoning key request")
		g.abandon(c)
	}

	select {
	case out := <-c.reply:
		return out
	case <-ctx.Done():
		g.abandon(c)
		return <-c.reply
	}
}

func (g *Gate) open(initData []byte) (*cycle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, false
	}
	if g.cur != nil {
		g.finishLocked(g.cur, evAbandon, nil)
	}

	g.gen++
	c := &cycle{
		req: Request{
			Generation: g.gen,
			SessionID:  uuid.NewString(),
			InitData:   bytes.Clone(initData),
		},
		reply: make(chan Outcome, 1),
	}
	c.machine = cycleTable.New(StateIdle, g.traceTransition(c))
	c.ctx, c.cancel = context.WithCancel(context.Background())
	g.cur = c
	g.advanceLocked(c, evKeyNeeded)
	g.advanceLocked(c, evDispatch)

	g.logger.Debug().
		Uint64(log.FieldGeneration, c.req.Generation).
		Str(log.FieldKeySessionID, c.req.SessionID).
		Str(log.FieldEvent, "keygate.key_needed").
		Int("init_data_bytes", len(initData)).
		Msg("pipeline waiting for key")
	return c, true
}

// traceTransition logs every step of c's cycle.
func (g *Gate) traceTransition(c *cycle) fsm.Observer[State, event] {
	return func(from, to State, ev event) {
		g.logger.Trace().
			Uint64(log.FieldGeneration, c.req.Generation).
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Str("trigger", string(ev)).
			Msg("key gate transition")
	}
}

func (g *Gate) advanceLocked(c *cycle, ev event) bool {
	if _, err := c.machine.Fire(ev); err != nil {
		g.logger.Debug().Err(err).Uint64(log.FieldGeneration, c.req.Generation).Msg("key gate transition ignored")
		return false
	}
	return true
}

// finishLocked releases c exactly once.
func (g *Gate) finishLocked(c *cycle, ev event, license []byte) bool {
	to, err := c.machine.Fire(ev)
	if err != nil {
		return false
	}
	c.reply <- Outcome{Generation: c.req.Generation, State: to, License: license}
	c.cancel()
	if g.cur == c {
		g.cur = nil
	}
	g.last = to
	metrics.IncKeyExchange(string(to))
	g.logger.Debug().
		Uint64(log.FieldGeneration, c.req.Generation).
		Str(log.FieldNewState, string(to)).
		Str(log.FieldEvent, "keygate.released").
		Msg("key gate released")
	return true
}

func (g *Gate) isCurrent(c *cycle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur == c
}

func (g *Gate) abandon(c *cycle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == c {
		g.finishLocked(c, evAbandon, nil)
	}
}

// Deliver ends the current cycle with the given license.
func (g *Gate) Deliver(license []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil {
		return model.ErrNoKeySession
	}
	if !g.finishLocked(g.cur, evDeliver, bytes.Clone(license)) {
		return fmt.Errorf("deliver key in state %s: %w", g.cur.machine.State(), fsm.ErrInvalidTransition)
	}
	return nil
}

// Release abandons the current cycle, if any. It is safe to call at any time.
func (g *Gate) Release() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil {
		return false
	}
	return g.finishLocked(g.cur, evAbandon, nil)
}

// Close releases the current cycle and makes future Await calls return immediately.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.cur != nil {
		g.finishLocked(g.cur, evAbandon, nil)
	}
}

// Pending returns the request of the open cycle.
func (g *Gate) Pending() (Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil {
		return Request{}, false
	}
	return g.cur.req, true
}

// State returns the state of the open cycle, or the terminal state of the last one.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur != nil {
		return g.cur.machine.State()
	}
	return g.last
}

// Generation returns the number of cycles opened so far.
func (g *Gate) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}
