// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"fmt"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/playback/keygate"
	"github.com/Metrological/qtwebkit/internal/playback/mime"
	"github.com/Metrological/qtwebkit/internal/playback/model"
)

// dispatchKeyNeeded surfaces a key request to the client. It runs on the
// control loop while the pipeline goroutine waits in the gate.
func (e *Engine) dispatchKeyNeeded(req keygate.Request) bool {
	if e.closed {
		return false
	}
	e.logger.Info().
		Str(log.FieldEvent, "player.key_needed").
		Str(log.FieldKeySessionID, req.SessionID).
		Uint64(log.FieldGeneration, req.Generation).
		Int("init_data_len", len(req.InitData)).
		Msg("key needed")
	return e.client.KeyNeeded(req.InitData)
}

// SupportsKeySystem reports whether keySystem can be used for mimeType.
func (e *Engine) SupportsKeySystem(keySystem, mimeType string) bool {
	return mime.SupportsKeySystem(keySystem, mimeType, e.opts.KeySystems...)
}

// GenerateKeyRequest returns the pending key request for keySystem.
func (e *Engine) GenerateKeyRequest(keySystem string) (keygate.Request, error) {
	if !e.SupportsKeySystem(keySystem, "") {
		return keygate.Request{}, fmt.Errorf("%w: %s", model.ErrUnsupportedKeySystem, keySystem)
	}
	req, ok := e.gate.Pending()
	if !ok {
		return keygate.Request{}, model.ErrNoKeySession
	}
	return req, nil
}

// PendingKeyRequest returns the key request the pipeline is blocked on.
func (e *Engine) PendingKeyRequest() (keygate.Request, bool) {
	return e.gate.Pending()
}

// UpdateKey delivers license to the pending request. An empty sessionID
// matches any pending request.
func (e *Engine) UpdateKey(sessionID string, license []byte) error {
	req, ok := e.gate.Pending()
	if !ok || (sessionID != "" && sessionID != req.SessionID) {
		return model.ErrNoKeySession
	}
	if err := e.gate.Deliver(license); err != nil {
		return fmt.Errorf("deliver key: %w", err)
	}
	e.logger.Info().
		Str(log.FieldEvent, "player.key_delivered").
		Str(log.FieldKeySessionID, req.SessionID).
		Msg("key delivered")
	return nil
}

// ReleaseKeys abandons the pending key request.
func (e *Engine) ReleaseKeys() bool {
	return e.gate.Release()
}
