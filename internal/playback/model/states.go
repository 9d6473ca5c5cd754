// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// NetworkState is the player-facing loading status of the media resource.
type NetworkState int

const (
	NetworkEmpty NetworkState = iota
	NetworkIdle
	NetworkLoading
	NetworkLoaded
	NetworkFormatError
	NetworkNetworkError
	NetworkDecodeError
)

func (s NetworkState) String() string {
	switch s {
	case NetworkEmpty:
		return "EMPTY"
	case NetworkIdle:
		return "IDLE"
	case NetworkLoading:
		return "LOADING"
	case NetworkLoaded:
		return "LOADED"
	case NetworkFormatError:
		return "FORMAT_ERROR"
	case NetworkNetworkError:
		return "NETWORK_ERROR"
	case NetworkDecodeError:
		return "DECODE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsError reports whether the state is one of the terminal error categories.
func (s NetworkState) IsError() bool {
	return s >= NetworkFormatError
}

// ReadyState describes how much media data is available for playback.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

func (s ReadyState) String() string {
	switch s {
	case HaveNothing:
		return "HAVE_NOTHING"
	case HaveMetadata:
		return "HAVE_METADATA"
	case HaveCurrentData:
		return "HAVE_CURRENT_DATA"
	case HaveFutureData:
		return "HAVE_FUTURE_DATA"
	case HaveEnoughData:
		return "HAVE_ENOUGH_DATA"
	default:
		return "UNKNOWN"
	}
}

// Preload is the loading hint given by the embedding application.
type Preload string

const (
	PreloadNone     Preload = "none"
	PreloadMetadata Preload = "metadata"
	PreloadAuto     Preload = "auto"
)

// ParsePreload maps a config or API value to a Preload, defaulting to auto.
func ParsePreload(s string) (Preload, bool) {
	switch Preload(s) {
	case PreloadNone, PreloadMetadata, PreloadAuto:
		return Preload(s), true
	case "":
		return PreloadAuto, true
	default:
		return PreloadAuto, false
	}
}

// SupportsType is the answer of the MIME table for a content type.
type SupportsType string

const (
	NotSupported   SupportsType = ""
	MayBeSupported SupportsType = "maybe"
	IsSupported    SupportsType = "probably"
)
