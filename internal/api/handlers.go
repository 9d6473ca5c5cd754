// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	xglog "github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/playback/mime"
	"github.com/Metrological/qtwebkit/internal/playback/model"
)

const maxBodyBytes = 1 << 20

type loadRequest struct {
	URL string `json:"url"`
}

type seekRequest struct {
	Time *float64 `json:"time"`
}

type rateRequest struct {
	Rate *float64 `json:"rate"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

type mutedRequest struct {
	Muted *bool `json:"muted"`
}

type preloadRequest struct {
	Preload string `json:"preload"`
}

type keyRequest struct {
	KeySystem string `json:"keySystem"`
}

type keyResponse struct {
	SessionID  string `json:"sessionId"`
	Generation uint64 `json:"generation"`
	InitData   []byte `json:"initData"`
}

type licenseRequest struct {
	License []byte `json:"license"`
}

// decodeBody reads a single JSON object, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func finite(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", errBadRequest, name)
	}
	return *v, nil
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, err error) {
	if err != nil {
		logger := xglog.WithContext(r.Context(), s.logger)
		logger.Debug().
			Err(err).
			Str(xglog.FieldEvent, "api.player_call_failed").
			Str("op", op).
			Msg("player call failed")
		writeError(w, err)
		return
	}
	s.writeSnapshot(w, r)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()
	snap, err := s.player.Snapshot(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "sessionId": s.player.SessionID()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, r)
}

func (s *Server) handleBuffered(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()
	ranges, err := s.player.Buffered(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if ranges == nil {
		ranges = model.TimeRanges{}
	}
	writeJSON(w, http.StatusOK, ranges)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "load", s.player.Load(ctx, req.URL))
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "play", s.player.Play(ctx))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "pause", s.player.Pause(ctx))
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := finite("time", req.Time)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "seek", s.player.Seek(ctx, t))
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rate, err := finite("rate", req.Rate)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.events != nil {
		s.events.SetRequestedRate(rate)
	}
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "set_rate", s.player.SetRate(ctx, rate))
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := finite("volume", req.Volume)
	if err != nil {
		writeError(w, err)
		return
	}
	if v < 0 || v > 1 {
		writeError(w, fmt.Errorf("%w: volume must be within [0, 1]", errBadRequest))
		return
	}
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "set_volume", s.player.SetVolume(ctx, v))
}

func (s *Server) handleMuted(w http.ResponseWriter, r *http.Request) {
	var req mutedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Muted == nil {
		writeError(w, fmt.Errorf("%w: muted is required", errBadRequest))
		return
	}
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "set_muted", s.player.SetMuted(ctx, *req.Muted))
}

func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req preloadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	preload, ok := model.ParsePreload(req.Preload)
	if !ok {
		writeError(w, fmt.Errorf("%w: unknown preload %q", errBadRequest, req.Preload))
		return
	}
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "set_preload", s.player.SetPreload(ctx, preload))
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "prepare", s.player.PrepareToPlay(ctx))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()
	s.respond(w, r, "cancel_load", s.player.CancelLoad(ctx))
}

func (s *Server) handleKeyRequest(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.callContext(r)
	defer cancel()
	kr, err := s.player.GenerateKeyRequest(ctx, req.KeySystem)
	if err != nil {
		writeError(w, err)
		return
	}
	logger := xglog.WithContext(r.Context(), s.logger)
	logger.Info().
		Str(xglog.FieldEvent, "api.key_request").
		Str(xglog.FieldKeySessionID, kr.SessionID).
		Uint64(xglog.FieldGeneration, kr.Generation).
		Msg("key request issued")
	writeJSON(w, http.StatusCreated, keyResponse{SessionID: kr.SessionID, Generation: kr.Generation, InitData: kr.InitData})
}

func (s *Server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.License) == 0 {
		writeError(w, fmt.Errorf("%w: license is required", errBadRequest))
		return
	}
	ctx, cancel := s.callContext(r)
	defer cancel()
	if err := s.player.UpdateKey(ctx, chi.URLParam(r, "sessionID"), req.License); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReleaseKeys(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()
	released, err := s.player.ReleaseKeys(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: since must be an unsigned integer", errBadRequest))
			return
		}
		since = v
	}
	if s.events == nil {
		writeJSON(w, http.StatusOK, []Event{})
		return
	}
	writeJSON(w, http.StatusOK, s.events.Since(since))
}

func (s *Server) handleSupportsType(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contentType := q.Get("type")
	if contentType == "" {
		writeError(w, fmt.Errorf("%w: type is required", errBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"type":   contentType,
		"result": string(mime.SupportsType(contentType, q.Get("codecs"))),
	})
}

func (s *Server) handleSupportsKeySystem(w http.ResponseWriter, r *http.Request) {
	keySystem := chi.URLParam(r, "keySystem")
	supported := mime.SupportsKeySystem(keySystem, r.URL.Query().Get("type"), s.cfg.KeySystems...)
	writeJSON(w, http.StatusOK, map[string]any{"keySystem": keySystem, "supported": supported})
}
