// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

var errBadRequest = errors.New("bad request")

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps player errors to HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var engErr *ports.EngineError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrInvalidURL):
		return http.StatusBadRequest, "invalid_url"
	case errors.Is(err, model.ErrUnsupportedKeySystem):
		return http.StatusBadRequest, "unsupported_key_system"
	case errors.Is(err, model.ErrOriginRejected):
		return http.StatusForbidden, "origin_rejected"
	case errors.Is(err, model.ErrNoKeySession):
		return http.StatusNotFound, "no_key_session"
	case errors.Is(err, model.ErrNoPipeline):
		return http.StatusConflict, "no_media"
	case errors.Is(err, model.ErrLiveStream):
		return http.StatusConflict, "live_stream"
	case errors.Is(err, model.ErrLoadFailed):
		return http.StatusConflict, "load_failed"
	case errors.As(err, &engErr):
		return http.StatusBadGateway, "pipeline_error"
	case errors.Is(err, model.ErrClosed):
		return http.StatusServiceUnavailable, "player_closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps err and writes it. Server errors hide their detail.
func writeError(w http.ResponseWriter, err error) {
	code, name := statusFor(err)
	body := errorBody{Error: name}
	if code < http.StatusInternalServerError || code == http.StatusBadGateway {
		body.Detail = err.Error()
	}
	writeJSON(w, code, body)
}
