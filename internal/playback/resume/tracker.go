// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resume

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Metrological/qtwebkit/internal/log"
	"github.com/Metrological/qtwebkit/internal/metrics"
	xnet "github.com/Metrological/qtwebkit/internal/platform/net"
)

// Tracker buffers offered positions and writes them to a Store at most
// once per interval. Offer never blocks, so it is safe on a player's
// control loop.
type Tracker struct {
	store   Store
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]float64
	wake    chan struct{}
}

// NewTracker returns a tracker writing to store. interval bounds how often
// Run writes checkpoints.
func NewTracker(store Store, interval time.Duration) *Tracker {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Tracker{
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		logger:  log.WithComponent("resume"),
		now:     time.Now,
		pending: make(map[string]float64),
		wake:    make(chan struct{}, 1),
	}
}

// Offer records pos as the latest position of mediaURL. A position of 0
// forgets the media on the next write.
func (t *Tracker) Offer(mediaURL string, pos float64) {
	if mediaURL == "" || math.IsNaN(pos) || math.IsInf(pos, 0) {
		return
	}
	t.mu.Lock()
	t.pending[mediaURL] = math.Max(0, pos)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Lookup returns the position to resume mediaURL at. Positions not yet
// written win over stored ones.
func (t *Tracker) Lookup(ctx context.Context, mediaURL string) (float64, bool) {
	t.mu.Lock()
	pos, ok := t.pending[mediaURL]
	t.mu.Unlock()
	if ok {
		return pos, pos > 0
	}

	st, err := t.store.Get(ctx, mediaURL)
	if err != nil {
		t.logger.Warn().Err(err).Str(log.FieldURL, xnet.SanitizeURL(mediaURL)).Msg("resume lookup failed")
		return 0, false
	}
	if st == nil || st.PosSeconds <= 0 {
		return 0, false
	}
	return st.PosSeconds, true
}

// Pending returns the number of positions not yet written.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Pruner is implemented by stores that can drop expired positions in bulk.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Run writes offered positions until ctx is done, then flushes what is left.
// Stores implementing Pruner are pruned once on start.
func (t *Tracker) Run(ctx context.Context) error {
	if p, ok := t.store.(Pruner); ok {
		if n, err := p.Prune(ctx); err != nil {
			t.logger.Warn().Err(err).Msg("resume prune failed")
		} else if n > 0 {
			t.logger.Info().Int64("removed", n).Msg("expired resume positions pruned")
		}
	}
	for {
		select {
		case <-ctx.Done():
			return t.Flush(context.WithoutCancel(ctx))
		case <-t.wake:
			if err := t.limiter.Wait(ctx); err != nil {
				continue
			}
			if err := t.Flush(ctx); err != nil {
				t.logger.Warn().Err(err).Msg("resume checkpoint failed")
			}
		}
	}
}

// Flush writes every pending position. Failed writes stay pending unless a
// newer position was offered meanwhile.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	batch := t.pending
	t.pending = make(map[string]float64, len(batch))
	t.mu.Unlock()

	var errs []error
	for mediaURL, pos := range batch {
		var err error
		result := "written"
		if pos <= 0 {
			result = "cleared"
			err = t.store.Delete(ctx, mediaURL)
		} else {
			err = t.store.Put(ctx, mediaURL, &State{PosSeconds: pos, UpdatedAt: t.now()})
		}
		if err != nil {
			metrics.IncResumeCheckpoint("failed")
			errs = append(errs, fmt.Errorf("checkpoint %s: %w", xnet.SanitizeURL(mediaURL), err))
			t.requeue(mediaURL, pos)
			continue
		}
		metrics.IncResumeCheckpoint(result)
		t.logger.Debug().
			Str(log.FieldEvent, "resume.checkpoint").
			Str(log.FieldURL, xnet.SanitizeURL(mediaURL)).
			Float64(log.FieldPosition, pos).
			Str(log.FieldResult, result).
			Msg("resume position written")
	}
	return errors.Join(errs...)
}

func (t *Tracker) requeue(mediaURL string, pos float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, newer := t.pending[mediaURL]; !newer {
		t.pending[mediaURL] = pos
	}
}
