// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on playback spans.
const (
	PlaybackSessionKey  = "playback.session_id"
	PlaybackURLKey      = "playback.url"
	PlaybackTargetKey   = "playback.target_seconds"
	PlaybackRateKey     = "playback.rate"
	PlaybackNetworkKey  = "playback.network_state"
	PlaybackReadyKey    = "playback.ready_state"
	PlaybackPositionKey = "playback.position_seconds"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes identifies the playback session and its media.
func SessionAttributes(sessionID, url string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(PlaybackSessionKey, sessionID)}
	if url != "" {
		attrs = append(attrs, attribute.String(PlaybackURLKey, url))
	}
	return attrs
}

// SeekAttributes describes a seek request.
func SeekAttributes(target, position float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64(PlaybackTargetKey, target),
		attribute.Float64(PlaybackPositionKey, position),
	}
}

// StateAttributes records the player states at the end of an operation.
func StateAttributes(network, ready string, rate float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PlaybackNetworkKey, network),
		attribute.String(PlaybackReadyKey, ready),
		attribute.Float64(PlaybackRateKey, rate),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
