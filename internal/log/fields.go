// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID    = "session_id"
	FieldRequestID    = "request_id"
	FieldKeySessionID = "key_session_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldBackend   = "backend"

	// Playback fields
	FieldURL          = "url"
	FieldSeekTime     = "seek_time"
	FieldPosition     = "position"
	FieldDuration     = "duration"
	FieldRate         = "rate"
	FieldPercent      = "percent"
	FieldGeneration   = "generation"
	FieldNetworkState = "network_state"
	FieldReadyState   = "ready_state"

	// State fields
	FieldOldState     = "old_state"
	FieldNewState     = "new_state"
	FieldPendingState = "pending_state"
	FieldResult       = "result"
)
