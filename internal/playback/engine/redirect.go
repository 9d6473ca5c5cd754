// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	xnet "github.com/Metrological/qtwebkit/internal/platform/net"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

// mediaLocationChanged replaces the candidate list with the one announced
// by a redirect and tries it. Exhausting the list fails the load.
func (e *Engine) mediaLocationChanged(r *ports.Redirect) {
	if r == nil {
		return
	}
	e.locations = model.NewMediaLocationList(r.NewLocation, r.Locations)
	e.logger.Info().
		Str(log.FieldEvent, "player.redirect").
		Int("candidates", e.locations.Len()).
		Msg("media location changed")

	if !e.loadNextLocation() {
		metrics.IncRedirect("exhausted")
		e.loadingFailed(model.NetworkNetworkError)
	}
}

// loadNextLocation switches the pipeline to the next acceptable candidate.
// Candidates failing the origin policy are skipped.
func (e *Engine) loadNextLocation() bool {
	for {
		raw, ok := e.locations.Next()
		if !ok {
			e.locations = nil
			return false
		}
		next, err := e.checkLocation(raw)
		if err != nil {
			metrics.IncRedirect("rejected")
			e.logger.Info().
				Err(err).
				Str(log.FieldURL, xnet.SanitizeURL(raw)).
				Msg("not allowed to load media location")
			continue
		}
		if e.switchLocation(next) {
			metrics.IncRedirect("followed")
			return true
		}
	}
}

func (e *Engine) checkLocation(raw string) (*url.URL, error) {
	u, err := xnet.Resolve(e.url, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidURL, err)
	}
	if err := e.opts.OriginPolicy.CanRequest(e.url, u); err != nil {
		return nil, errors.Join(model.ErrOriginRejected, err)
	}
	return u, nil
}

// SetOriginPolicy replaces the policy used to vet redirect candidates.
func (e *Engine) SetOriginPolicy(policy xnet.OriginPolicy) {
	e.opts.OriginPolicy = policy
}

// switchLocation restarts the pipeline on a new location.
func (e *Engine) switchLocation(u *url.URL) bool {
	e.gate.Release()
	e.setNetworkState(model.NetworkLoading)
	e.setReadyState(model.HaveNothing)

	e.st.ResetPipeline = true
	e.changePipelineState(ports.StateReady)
	if cur, _, _ := e.stateQuery(); cur > ports.StateReady {
		e.logger.Warn().Str(log.FieldOldState, cur.String()).Msg("pipeline did not reset for new location")
		return false
	}

	if err := e.pipe.SetProperty(ports.PropURI, u.String()); err != nil {
		e.logger.Warn().Err(err).Msg("failed to set new location")
		return false
	}
	e.url = u
	e.buf.Reset()
	e.seek = model.SeekRequest{}
	e.seekStarted = time.Time{}
	e.st.Seeking = false
	e.st.SeekIsPending = false
	e.duration = 0
	e.durationKnown = true
	e.totalBytes = -1
	e.logger.Info().Str(log.FieldURL, xnet.SanitizeURL(u.String())).Msg("new media location")
	e.changePipelineState(ports.StatePlaying)
	return true
}
