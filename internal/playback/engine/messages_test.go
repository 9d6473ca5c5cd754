// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
	"github.com/Metrological/qtwebkit/internal/playback/sim"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		domain ports.ErrorDomain
		code   ports.ErrorCode
		want   errorAction
	}{
		{"codec not found", ports.DomainStream, ports.CodeCodecNotFound, errorAction{category: model.NetworkFormatError}},
		{"wrong type", ports.DomainStream, ports.CodeWrongType, errorAction{category: model.NetworkFormatError}},
		{"stream failed", ports.DomainStream, ports.CodeFailed, errorAction{category: model.NetworkFormatError}},
		{"missing plugin", ports.DomainCore, ports.CodeMissingPlugin, errorAction{category: model.NetworkFormatError}},
		{"resource not found", ports.DomainResource, ports.CodeNotFound, errorAction{category: model.NetworkFormatError}},
		{"type not found", ports.DomainStream, ports.CodeTypeNotFound, errorAction{category: model.NetworkDecodeError, stall: true}},
		{"demux", ports.DomainStream, ports.CodeDemux, errorAction{category: model.NetworkDecodeError, retry: true}},
		{"decrypt", ports.DomainStream, ports.CodeDecrypt, errorAction{category: model.NetworkDecodeError, retry: true}},
		{"read", ports.DomainResource, ports.CodeRead, errorAction{category: model.NetworkNetworkError}},
		{"not authorized", ports.DomainResource, ports.CodeNotAuthorized, errorAction{category: model.NetworkNetworkError}},
		{"core state change", ports.DomainCore, ports.CodeStateChange, errorAction{category: model.NetworkFormatError}},
		{"library", ports.DomainLibrary, ports.CodeFailed, errorAction{category: model.NetworkFormatError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(&ports.EngineError{Domain: tt.domain, Code: tt.code})
			assert.Equal(t, tt.want, got)
		})
	}
}

func emitError(h *harness, domain ports.ErrorDomain, code ports.ErrorCode) {
	h.pipe.Emit(ports.ErrorMessage(&ports.EngineError{Domain: domain, Code: code, Message: string(code)}))
	h.sched.drain()
}

func TestUndecodableStreamStallsWithoutFailing(t *testing.T) {
	h := newHarness(t, clipLibrary(), nil)
	h.ready()

	emitError(h, ports.DomainStream, ports.CodeTypeNotFound)

	assert.False(t, h.eng.State().ErrorOccurred)
	assert.Equal(t, model.HaveEnoughData, h.eng.ReadyState())
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	require.Len(t, h.client.stalls, 1)
	assert.ErrorIs(t, h.client.stalls[0], &ports.EngineError{Domain: ports.DomainStream, Code: ports.CodeTypeNotFound})
}

func TestResourceErrorFailsLoad(t *testing.T) {
	h := newHarness(t, clipLibrary(), nil)
	h.ready()

	emitError(h, ports.DomainResource, ports.CodeRead)
	assert.Equal(t, model.NetworkNetworkError, h.eng.NetworkState())
	assert.Equal(t, model.HaveNothing, h.eng.ReadyState())
	assert.False(t, h.eng.fillTimer.IsActive())

	// The first error wins.
	emitError(h, ports.DomainStream, ports.CodeCodecNotFound)
	assert.Equal(t, model.NetworkNetworkError, h.eng.NetworkState())
	assert.Equal(t, 1, h.client.Count("network:NETWORK_ERROR"))
	assert.Zero(t, h.client.Count("network:FORMAT_ERROR"))
}

func TestErrorDuringResetWaitsForStateFailure(t *testing.T) {
	h := newHarness(t, clipLibrary(), nil)
	h.load(clipURL)
	require.True(t, h.eng.State().ResetPipeline)

	emitError(h, ports.DomainResource, ports.CodeRead)
	assert.False(t, h.eng.State().ErrorOccurred, "pipeline has not failed yet")
	assert.Equal(t, model.NetworkEmpty, h.eng.NetworkState())
}

func TestPrerollFailureClassifiedFromLastError(t *testing.T) {
	tests := []struct {
		name string
		err  *ports.EngineError
		want model.NetworkState
	}{
		{"network", &ports.EngineError{Domain: ports.DomainResource, Code: ports.CodeOpenRead}, model.NetworkNetworkError},
		{"format", &ports.EngineError{Domain: ports.DomainStream, Code: ports.CodeCodecNotFound}, model.NetworkFormatError},
		{"decode", &ports.EngineError{Domain: ports.DomainStream, Code: ports.CodeDecode}, model.NetworkDecodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := sim.Library{Media: map[string]sim.Media{
				clipURL: {Duration: 10 * time.Second, Fail: tt.err},
			}}
			h := newHarness(t, lib, nil)
			h.load(clipURL)
			h.step()

			assert.True(t, h.eng.State().ErrorOccurred)
			assert.Equal(t, tt.want, h.eng.NetworkState())
			assert.Equal(t, model.HaveNothing, h.eng.ReadyState())
		})
	}
}

func TestMessagesFromPreviousSessionAreDropped(t *testing.T) {
	h := newHarness(t, clipLibrary(), nil)
	h.ready()

	// Queued but not yet run when the next load starts.
	h.pipe.Emit(ports.ErrorMessage(&ports.EngineError{Domain: ports.DomainResource, Code: ports.CodeRead}))
	require.NoError(t, h.eng.Load(clipURL))
	h.sched.drain()

	assert.False(t, h.eng.State().ErrorOccurred)
	h.step()
	assert.Equal(t, model.HaveFutureData, h.eng.ReadyState())
}

func TestChildStateChangesIgnored(t *testing.T) {
	h := newHarness(t, clipLibrary(), nil)
	h.ready()
	h.client.Reset()

	h.eng.HandleMessage(ports.Message{Kind: ports.MsgStateChanged, OldState: ports.StatePaused, NewState: ports.StateReady})
	h.eng.HandleMessage(ports.Message{Kind: ports.MsgAsyncDone})
	assert.Empty(t, h.client.Events())
}
