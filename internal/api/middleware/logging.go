// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"time"

	xglog "github.com/Metrological/qtwebkit/internal/log"
)

// Logging writes one access log line per request.
func Logging() func(http.Handler) http.Handler {
	base := xglog.WithComponent("api")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			logger := xglog.WithContext(r.Context(), base)
			ev := logger.Info()
			if sw.statusCode >= http.StatusInternalServerError {
				ev = logger.Error()
			} else if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				ev = logger.Debug()
			}
			ev.Str(xglog.FieldEvent, "api.request").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", sw.statusCode).
				Int("bytes", sw.bytesWritten).
				Dur("latency", time.Since(start)).
				Msg("http request")
		})
	}
}
