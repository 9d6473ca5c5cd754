// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gstreamer

import "github.com/Metrological/qtwebkit/internal/playback/ports"

// Element message structure names understood by the pipeline.
const (
	structRedirect      = "redirect"
	structKeyNeeded     = "drm-key-needed"
	structLicense       = "drm-license"
	fieldInitData       = "init-data"
	fieldNewLocation    = "new-location"
	fieldLocations      = "locations"
	fieldLicensePayload = "license"
)

// elementKind maps an element message structure name to a message kind.
func elementKind(structName string) (ports.MessageKind, bool) {
	switch structName {
	case structRedirect:
		return ports.MsgRedirect, true
	case structKeyNeeded:
		return ports.MsgKeyNeeded, true
	default:
		return 0, false
	}
}

// onPostingThread reports whether kind is handed to the sync handler on
// the thread that posted it. Key-needed must block that thread; duration
// changes only queue work for the control loop.
func onPostingThread(kind ports.MessageKind) bool {
	return kind == ports.MsgKeyNeeded || kind == ports.MsgDurationChanged
}
