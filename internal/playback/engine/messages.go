// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/playback/keygate"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

// HandleMessage is the asynchronous ingress. It runs on the control loop.
func (e *Engine) HandleMessage(msg ports.Message) {
	if e.closed || e.pipe == nil {
		return
	}
	e.canFallBackToLastFinishedSeekPosition = false

	e.logger.Trace().
		Str(log.FieldEvent, "player.message").
		Str("kind", msg.Kind.String()).
		Msg("pipeline message")

	switch msg.Kind {
	case ports.MsgError:
		e.handleError(msg.Err)
	case ports.MsgEOS:
		e.didEnd()
	case ports.MsgAsyncDone:
		if msg.FromPipeline {
			e.asyncStateSettled()
		}
	case ports.MsgStateChanged:
		// State changes are replayed by commitLoad when the load is delayed.
		if e.delayingLoad || !msg.FromPipeline {
			return
		}
		e.reconcile()
	case ports.MsgBuffering:
		e.processBufferingStats(msg.Percent)
	case ports.MsgRedirect:
		e.mediaLocationChanged(msg.Redirect)
	case ports.MsgRequestState:
		e.handleRequestState(msg.RequestedState)
	case ports.MsgDurationChanged:
		e.ops.Schedule(e.durationChanged)
	case ports.MsgTracksChanged:
		e.tracksChanged(msg.Tracks)
	default:
		e.logger.Debug().Str("kind", msg.Kind.String()).Msg("unhandled pipeline message")
	}
}

// HandleSyncMessage is the synchronous ingress. It runs on the pipeline
// goroutine and must not touch engine state directly.
func (e *Engine) HandleSyncMessage(msg ports.Message) ports.SyncReply {
	switch msg.Kind {
	case ports.MsgDurationChanged:
		e.ops.Schedule(e.durationChanged)
	case ports.MsgKeyNeeded:
		out := e.gate.Await(context.Background(), msg.InitData, e.sched.Call, e.dispatchKeyNeeded)
		if out.State == keygate.StateKeyDelivered {
			return ports.SyncReply{License: out.License}
		}
	}
	return ports.SyncReply{}
}

func (e *Engine) handleRequestState(requested ports.State) {
	cur, _, _ := e.pipe.GetState(e.opts.StateQueryTimeout)
	e.logger.Debug().
		Str(log.FieldOldState, cur.String()).
		Str(log.FieldNewState, requested.String()).
		Msg("pipeline requested state")
	if requested < cur {
		e.requestedState = requested
		e.changePipelineState(requested)
	}
}

// errorAction is what the engine does about an engine error.
type errorAction struct {
	category model.NetworkState
	// stall lets the client treat the error as a stall without failing.
	stall bool
	// retry tries the next redirect location before failing.
	retry bool
}

func classifyError(err *ports.EngineError) errorAction {
	switch {
	case errors.Is(err, &ports.EngineError{Domain: ports.DomainStream, Code: ports.CodeCodecNotFound}),
		errors.Is(err, &ports.EngineError{Domain: ports.DomainStream, Code: ports.CodeWrongType}),
		errors.Is(err, &ports.EngineError{Domain: ports.DomainStream, Code: ports.CodeFailed}),
		errors.Is(err, &ports.EngineError{Domain: ports.DomainCore, Code: ports.CodeMissingPlugin}),
		errors.Is(err, &ports.EngineError{Domain: ports.DomainResource, Code: ports.CodeNotFound}):
		return errorAction{category: model.NetworkFormatError}
	case err.Domain == ports.DomainStream && err.Code == ports.CodeTypeNotFound:
		return errorAction{category: model.NetworkDecodeError, stall: true}
	case err.Domain == ports.DomainStream:
		return errorAction{category: model.NetworkDecodeError, retry: true}
	case err.Domain == ports.DomainResource:
		return errorAction{category: model.NetworkNetworkError}
	default:
		return errorAction{category: model.NetworkFormatError}
	}
}

func (e *Engine) handleError(err *ports.EngineError) {
	if err == nil || e.st.ErrorOccurred {
		return
	}
	// Kept for classifying a later state change failure.
	e.lastError = err
	if e.st.ResetPipeline {
		e.logger.Debug().Err(err).Msg("pipeline error ignored during reset")
		// A transition that failed because of it still surfaces here.
		e.reconcile()
		return
	}
	action := classifyError(err)

	e.logger.Warn().
		Err(err).
		Str(log.FieldEvent, "player.pipeline_error").
		Str(log.FieldNetworkState, action.category.String()).
		Msg("pipeline error")

	if action.stall {
		if obs, ok := e.client.(ports.StallObserver); ok {
			obs.Stalled(err)
		}
		return
	}
	if action.retry && e.loadNextLocation() {
		return
	}
	e.loadingFailed(action.category)
}

// Tracks returns the stream counts last reported by the pipeline.
func (e *Engine) Tracks() model.Tracks { return e.tracks }

func (e *Engine) tracksChanged(t model.Tracks) {
	if t == e.tracks {
		return
	}
	e.tracks = t
	e.logger.Debug().
		Int("video", t.Video).
		Int("audio", t.Audio).
		Int("text", t.Text).
		Msg("tracks changed")
	if obs, ok := e.client.(ports.TrackObserver); ok {
		obs.TracksChanged(t)
	}
}
