// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metrological/qtwebkit/internal/playback/engine"
	"github.com/Metrological/qtwebkit/internal/playback/keygate"
	"github.com/Metrological/qtwebkit/internal/playback/model"
)

// fakeController records calls and returns canned errors.
type fakeController struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	snap  engine.Snapshot
	key   keygate.Request
}

func newFakeController() *fakeController {
	return &fakeController{errs: map[string]error{}, snap: engine.Snapshot{SessionID: "fake", NetworkState: "EMPTY"}}
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	name, _, _ := strings.Cut(call, " ")
	return f.errs[name]
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) SessionID() string { return "fake" }

func (f *fakeController) Load(_ context.Context, url string) error { return f.record("load " + url) }
func (f *fakeController) Play(context.Context) error               { return f.record("play") }
func (f *fakeController) Pause(context.Context) error              { return f.record("pause") }
func (f *fakeController) PrepareToPlay(context.Context) error      { return f.record("prepare") }
func (f *fakeController) CancelLoad(context.Context) error         { return f.record("cancel") }

func (f *fakeController) Seek(_ context.Context, t float64) error {
	return f.record("seek " + jsonString(t))
}

func (f *fakeController) SetRate(_ context.Context, r float64) error {
	return f.record("rate " + jsonString(r))
}

func (f *fakeController) SetVolume(_ context.Context, v float64) error {
	return f.record("volume " + jsonString(v))
}

func (f *fakeController) SetMuted(_ context.Context, m bool) error {
	return f.record("muted " + jsonString(m))
}

func (f *fakeController) SetPreload(_ context.Context, p model.Preload) error {
	return f.record("preload " + string(p))
}

func (f *fakeController) Buffered(context.Context) (model.TimeRanges, error) {
	return model.NewTimeRanges(model.TimeRange{Start: 0, End: 4}), f.record("buffered")
}

func (f *fakeController) Duration(context.Context) (float64, error)    { return 10, f.record("duration") }
func (f *fakeController) CurrentTime(context.Context) (float64, error) { return 0, f.record("time") }

func (f *fakeController) GenerateKeyRequest(_ context.Context, ks string) (keygate.Request, error) {
	return f.key, f.record("keyrequest " + ks)
}

func (f *fakeController) UpdateKey(_ context.Context, id string, license []byte) error {
	return f.record("updatekey " + id + " " + string(license))
}

func (f *fakeController) ReleaseKeys(context.Context) (bool, error) {
	return true, f.record("release")
}

func (f *fakeController) Snapshot(context.Context) (engine.Snapshot, error) {
	return f.snap, f.record("snapshot")
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestControlCallsReturnSnapshot(t *testing.T) {
	fc := newFakeController()
	events := NewEventLog(0, false)
	h := New(fc, events, Config{}).Handler()

	steps := []struct {
		path string
		body string
		call string
	}{
		{"/api/v1/player/load", `{"url":"http://media.example/a.mp4"}`, "load http://media.example/a.mp4"},
		{"/api/v1/player/play", "", "play"},
		{"/api/v1/player/seek", `{"time":12.5}`, "seek 12.5"},
		{"/api/v1/player/rate", `{"rate":-2}`, "rate -2"},
		{"/api/v1/player/volume", `{"volume":0.25}`, "volume 0.25"},
		{"/api/v1/player/muted", `{"muted":true}`, "muted true"},
		{"/api/v1/player/preload", `{"preload":"metadata"}`, "preload metadata"},
		{"/api/v1/player/prepare", "", "prepare"},
		{"/api/v1/player/pause", "", "pause"},
		{"/api/v1/player/cancel", "", "cancel"},
	}
	var want []string
	for _, step := range steps {
		w := do(t, h, http.MethodPost, step.path, step.body)
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", step.path, w.Body.String())

		var snap engine.Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.Equal(t, "fake", snap.SessionID)
		want = append(want, step.call, "snapshot")
	}
	assert.Equal(t, want, fc.Calls())
	assert.Equal(t, -2.0, events.Rate(), "requested rate is what the client believes")
}

func TestBadRequests(t *testing.T) {
	fc := newFakeController()
	h := New(fc, nil, Config{}).Handler()

	tests := []struct {
		path string
		body string
	}{
		{"/api/v1/player/load", `{"url":`},
		{"/api/v1/player/load", `{"url":"x","autoplay":true}`},
		{"/api/v1/player/seek", `{}`},
		{"/api/v1/player/rate", `{"rate":"fast"}`},
		{"/api/v1/player/volume", `{"volume":1.5}`},
		{"/api/v1/player/muted", `{}`},
		{"/api/v1/player/preload", `{"preload":"eager"}`},
		{"/api/v1/player/keys", `[]`},
	}
	for _, tt := range tests {
		w := do(t, h, http.MethodPost, tt.path, tt.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s", tt.path, tt.body)
		assert.Equal(t, "bad_request", decodeError(t, w).Error)
	}
	assert.Empty(t, fc.Calls(), "invalid input never reaches the player")

	w := do(t, h, http.MethodPut, "/api/v1/player/keys/abc", `{"license":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/events?since=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/capabilities/types", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlayerErrorsAreMapped(t *testing.T) {
	fc := newFakeController()
	fc.errs["load"] = model.ErrInvalidURL
	fc.errs["seek"] = model.ErrLiveStream
	fc.errs["play"] = model.ErrClosed
	h := New(fc, nil, Config{}).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/player/load", `{"url":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errorBody{Error: "invalid_url", Detail: model.ErrInvalidURL.Error()}, decodeError(t, w))

	w = do(t, h, http.MethodPost, "/api/v1/player/seek", `{"time":3}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/player/play", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "player_closed", decodeError(t, w).Error)
}

func TestKeyEndpoints(t *testing.T) {
	fc := newFakeController()
	fc.key = keygate.Request{SessionID: "k-1", Generation: 2, InitData: []byte("pssh")}
	h := New(fc, nil, Config{}).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/player/keys", `{"keySystem":"org.w3.clearkey"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var kr keyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kr))
	assert.Equal(t, keyResponse{SessionID: "k-1", Generation: 2, InitData: []byte("pssh")}, kr)

	// []byte travels base64 encoded.
	w = do(t, h, http.MethodPut, "/api/v1/player/keys/k-1", `{"license":"bGljZW5zZQ=="}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	fc.errs["updatekey"] = model.ErrNoKeySession
	w = do(t, h, http.MethodPut, "/api/v1/player/keys/k-9", `{"license":"bGljZW5zZQ=="}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodDelete, "/api/v1/player/keys", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"released":true}`, w.Body.String())

	assert.Equal(t, []string{
		"keyrequest org.w3.clearkey",
		"updatekey k-1 license",
		"updatekey k-9 license",
		"release",
	}, fc.Calls())
}

func TestReadEndpoints(t *testing.T) {
	fc := newFakeController()
	events := NewEventLog(0, false)
	events.NetworkStateChanged(model.NetworkLoading)
	events.NetworkStateChanged(model.NetworkLoaded)
	h := New(fc, events, Config{KeySystems: []string{"com.example.drm"}}).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/player/buffered", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"start":0,"end":4}]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/v1/events?since=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got []Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "LOADED", got[0].Value)

	w = do(t, h, http.MethodGet, "/api/v1/capabilities/types?type=video/mp4&codecs=avc1", "")
	assert.JSONEq(t, `{"type":"video/mp4","result":"probably"}`, w.Body.String())
	w = do(t, h, http.MethodGet, "/api/v1/capabilities/types?type=video/webm", "")
	assert.JSONEq(t, `{"type":"video/webm","result":""}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/v1/capabilities/keysystems/com.example.drm", "")
	assert.JSONEq(t, `{"keySystem":"com.example.drm","supported":true}`, w.Body.String())
	w = do(t, h, http.MethodGet, "/api/v1/capabilities/keysystems/com.other.drm", "")
	assert.JSONEq(t, `{"keySystem":"com.other.drm","supported":false}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/healthz", "")
	assert.JSONEq(t, `{"status":"ok","sessionId":"fake"}`, w.Body.String())
}

func TestAPIRateLimit(t *testing.T) {
	h := New(newFakeController(), nil, Config{RequestsPerSecond: 2}).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/player", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/player", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/v1/player", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code, "probes are not limited")
}
