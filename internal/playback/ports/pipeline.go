// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "time"

// State is the state of the decode/render graph. States are ordered.
type State int

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "VOID_PENDING"
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// StateChangeReturn is the result of a state change or state query.
type StateChangeReturn int

const (
	StateChangeFailure StateChangeReturn = iota
	StateChangeSuccess
	StateChangeAsync
	StateChangeNoPreroll
)

func (r StateChangeReturn) String() string {
	switch r {
	case StateChangeFailure:
		return "FAILURE"
	case StateChangeSuccess:
		return "SUCCESS"
	case StateChangeAsync:
		return "ASYNC"
	case StateChangeNoPreroll:
		return "NO_PREROLL"
	default:
		return "UNKNOWN"
	}
}

// SeekFlags is a bitmask of seek behaviours.
type SeekFlags uint

const (
	SeekFlush SeekFlags = 1 << iota
	SeekAccurate
	SeekKeyUnit
)

// Has reports whether all bits of f are set.
func (s SeekFlags) Has(f SeekFlags) bool { return s&f == f }

// ClockTimeNone marks an open end of a seek window or an unknown time.
const ClockTimeNone time.Duration = -1

// PercentMax is the scale of buffering range values.
const PercentMax int64 = 1_000_000

// Property names understood by pipelines.
type Property string

const (
	PropURI       Property = "uri"
	PropMute      Property = "mute"
	PropVolume    Property = "volume"
	PropDownload  Property = "download"
	PropAudioSink Property = "audio-sink"
)

// BufferingRange is a downloaded span in PercentMax units.
type BufferingRange struct {
	Start int64
	Stop  int64
}

// BufferingQuery is the answer to a buffering query. Stop is the overall
// download fill in PercentMax units, or -1 when unknown.
type BufferingQuery struct {
	Stop   int64
	Ranges []BufferingRange
}

// Handlers receive pipeline notifications. Sync runs on the pipeline's own
// goroutine and may block it. Async must not block.
type Handlers struct {
	Sync  func(Message) SyncReply
	Async func(Message)
}

// SyncReply is returned by the synchronous handler.
type SyncReply struct {
	// License is the key material delivered for a key-needed message.
	License []byte
}

// Pipeline is the external decode/render graph.
type Pipeline interface {
	SetState(target State) StateChangeReturn
	// GetState waits up to timeout for a pending transition to finish.
	GetState(timeout time.Duration) (current, pending State, ret StateChangeReturn)
	QueryPosition() (time.Duration, bool)
	QueryDuration() (time.Duration, bool)
	QueryTotalBytes() (int64, bool)
	// Seek repositions the stream. stop may be ClockTimeNone.
	Seek(rate float64, flags SeekFlags, start, stop time.Duration) bool
	QueryBuffering() (BufferingQuery, bool)
	SetProperty(name Property, value any) error
	Property(name Property) (any, error)
	Subscribe(h Handlers)
	Close() error
}

// Factory creates a pipeline for a new session.
type Factory func() (Pipeline, error)
