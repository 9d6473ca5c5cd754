// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "errors"

var (
	// ErrNoPipeline is returned for operations that need a loaded pipeline.
	ErrNoPipeline = errors.New("no pipeline")
	// ErrClosed is returned once the player has been torn down.
	ErrClosed = errors.New("player closed")
	// ErrLoadFailed is returned while the current load session is in an error state.
	ErrLoadFailed = errors.New("load failed")
	// ErrLiveStream is returned for seeks and rate changes on live streams.
	ErrLiveStream = errors.New("operation not supported on live stream")
	// ErrInvalidURL classifies unparsable or unsupported media URLs.
	ErrInvalidURL = errors.New("invalid media url")
	// ErrOriginRejected is returned when a redirect candidate fails the origin check.
	ErrOriginRejected = errors.New("redirect origin rejected")
	// ErrNoKeySession is returned when a key is delivered without a pending request.
	ErrNoKeySession = errors.New("no pending key session")
	// ErrUnsupportedKeySystem classifies key systems the player cannot use.
	ErrUnsupportedKeySystem = errors.New("unsupported key system")
)
