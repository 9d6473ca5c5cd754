// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "github.com/Metrological/qtwebkit/internal/playback/model"

// MessageKind enumerates the notifications a pipeline emits.
type MessageKind int

const (
	MsgStateChanged MessageKind = iota + 1
	MsgAsyncDone
	MsgBuffering
	MsgDurationChanged
	MsgEOS
	MsgRedirect
	MsgKeyNeeded
	MsgRequestState
	MsgError
	MsgTracksChanged
)

func (k MessageKind) String() string {
	switch k {
	case MsgStateChanged:
		return "state-changed"
	case MsgAsyncDone:
		return "async-done"
	case MsgBuffering:
		return "buffering"
	case MsgDurationChanged:
		return "duration-changed"
	case MsgEOS:
		return "eos"
	case MsgRedirect:
		return "redirect"
	case MsgKeyNeeded:
		return "key-needed"
	case MsgRequestState:
		return "request-state"
	case MsgError:
		return "error"
	case MsgTracksChanged:
		return "tracks-changed"
	default:
		return "unknown"
	}
}

// Redirect carries the locations announced by a redirect notification.
type Redirect struct {
	NewLocation string
	Locations   []string
}

// Message is a single pipeline notification. Only the fields relevant to
// Kind are set.
type Message struct {
	Kind MessageKind
	// FromPipeline is true when the top-level pipeline posted the message,
	// false for messages bubbling up from child elements.
	FromPipeline bool

	OldState State
	NewState State

	Percent        int
	RequestedState State
	Redirect       *Redirect
	InitData       []byte
	Err            *EngineError
	Tracks         model.Tracks
}

// StateChanged builds a top-level state-change message.
func StateChanged(from, to State) Message {
	return Message{Kind: MsgStateChanged, FromPipeline: true, OldState: from, NewState: to}
}

// AsyncDone builds a top-level async-done message.
func AsyncDone() Message {
	return Message{Kind: MsgAsyncDone, FromPipeline: true}
}

// Buffering builds a buffering progress message.
func Buffering(percent int) Message {
	return Message{Kind: MsgBuffering, Percent: percent}
}

// TracksChanged reports the current stream counts.
func TracksChanged(t model.Tracks) Message {
	return Message{Kind: MsgTracksChanged, FromPipeline: true, Tracks: t}
}

// ErrorMessage wraps an engine error.
func ErrorMessage(err *EngineError) Message {
	return Message{Kind: MsgError, Err: err}
}
