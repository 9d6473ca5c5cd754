// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gstreamer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		message string
		debug   string
		domain  ports.ErrorDomain
		code    ports.ErrorCode
	}{
		{"Resource not found.", "souphttpsrc.c(1623): Not Found (404)", ports.DomainResource, ports.CodeNotFound},
		{"Could not open resource for reading.", "", ports.DomainResource, ports.CodeOpenRead},
		{"Could not determine type of stream.", "typefind", ports.DomainStream, ports.CodeTypeNotFound},
		{"Your GStreamer installation is missing a plug-in.", "missing plugin: avdec_h264", ports.DomainCore, ports.CodeMissingPlugin},
		{"Internal data stream error.", "streaming stopped, reason not-negotiated", ports.DomainStream, ports.CodeFailed},
		{"No decryption key available", "", ports.DomainStream, ports.CodeDecryptNoKey},
		{"Something odd happened", "", ports.DomainCore, ports.CodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := ClassifyError("playbin", tt.message, tt.debug)
			assert.Equal(t, tt.domain, got.Domain)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, "playbin", got.Source)
		})
	}
}
