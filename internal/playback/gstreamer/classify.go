// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gstreamer adapts a GStreamer playbin to the pipeline port. The
// binding itself builds only with the gstreamer tag; error classification
// is plain Go and always available.
package gstreamer

import (
	"strings"

	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

type errorRule struct {
	needle string
	domain ports.ErrorDomain
	code   ports.ErrorCode
}

// GStreamer hides the GError domain behind its message text. The first
// matching rule wins, so more specific phrases come first.
var errorRules = []errorRule{
	{"missing plugin", ports.DomainCore, ports.CodeMissingPlugin},
	{"no decoder available", ports.DomainCore, ports.CodeMissingPlugin},
	{"decryption key", ports.DomainStream, ports.CodeDecryptNoKey},
	{"decrypt", ports.DomainStream, ports.CodeDecrypt},
	{"not authorized", ports.DomainResource, ports.CodeNotAuthorized},
	{"forbidden", ports.DomainResource, ports.CodeNotAuthorized},
	{"not found", ports.DomainResource, ports.CodeNotFound},
	{"could not open resource for reading", ports.DomainResource, ports.CodeOpenRead},
	{"could not read", ports.DomainResource, ports.CodeRead},
	{"could not determine type of stream", ports.DomainStream, ports.CodeTypeNotFound},
	{"wrong type", ports.DomainStream, ports.CodeWrongType},
	{"codec", ports.DomainStream, ports.CodeCodecNotFound},
	{"could not decode", ports.DomainStream, ports.CodeDecode},
	{"demux", ports.DomainStream, ports.CodeDemux},
	{"state change failed", ports.DomainCore, ports.CodeStateChange},
	{"internal data stream error", ports.DomainStream, ports.CodeFailed},
}

// ClassifyError maps an error message and its debug text to an engine error.
func ClassifyError(source, message, debug string) *ports.EngineError {
	text := strings.ToLower(message + "\n" + debug)
	for _, r := range errorRules {
		if strings.Contains(text, r.needle) {
			return &ports.EngineError{Domain: r.domain, Code: r.code, Message: message, Source: source}
		}
	}
	return &ports.EngineError{Domain: ports.DomainCore, Code: ports.CodeFailed, Message: message, Source: source}
}
