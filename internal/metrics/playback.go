// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics registers the Prometheus collectors of the player.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlaybackStateTransitions counts emitted ready/network state changes.
	PlaybackStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaplayer_state_transitions_total",
		Help: "Number of emitted ready/network state changes by kind and target state",
	}, []string{"kind", "to"})

	// PlaybackSeeks counts user seek requests by outcome.
	PlaybackSeeks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaplayer_seeks_total",
		Help: "Number of seek requests by outcome",
	}, []string{"result"})

	// PlaybackSeekSettle tracks the time from issuing a seek until it settles.
	PlaybackSeekSettle = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediaplayer_seek_settle_seconds",
		Help:    "Time from seek request to settlement",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// PlaybackBufferingEvents counts buffering progress notifications by phase.
	PlaybackBufferingEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaplayer_buffering_events_total",
		Help: "Number of buffering notifications by phase",
	}, []string{"phase"})

	// PlaybackRateChanges counts rate change attempts by outcome.
	PlaybackRateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaplayer_rate_changes_total",
		Help: "Number of rate change requests by outcome",
	}, []string{"result"})

	// PlaybackKeyExchanges counts key-needed cycles by terminal state.
	PlaybackKeyExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaplayer_key_exchanges_total",
		Help: "Number of key exchange cycles by outcome",
	}, []string{"outcome"})

	// PlaybackLoadFailures counts failed load sessions by error category.
	PlaybackLoadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaplayer_load_failures_total",
		Help: "Number of failed load sessions by category",
	}, []string{"category"})

	// PlaybackRedirects counts redirect candidates by result.
	PlaybackRedirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaplayer_redirects_total",
		Help: "Number of redirect candidates tried by result",
	}, []string{"result"})

	// PlaybackAsyncOpsCancelled counts deferred operations dropped on teardown.
	PlaybackAsyncOpsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaplayer_async_ops_cancelled_total",
		Help: "Number of deferred operations cancelled on teardown",
	})

	// ResumeCheckpoints counts resume position writes by result.
	ResumeCheckpoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaplayer_resume_checkpoints_total",
		Help: "Number of resume position checkpoints by result",
	}, []string{"result"})
)

// IncStateTransition records an emitted state change.
func IncStateTransition(kind, to string) {
	PlaybackStateTransitions.WithLabelValues(kind, to).Inc()
}

// IncSeek records the outcome of a seek request.
func IncSeek(result string) {
	PlaybackSeeks.WithLabelValues(result).Inc()
}

// ObserveSeekSettle records how long a seek took to settle.
func ObserveSeekSettle(d time.Duration) {
	PlaybackSeekSettle.Observe(d.Seconds())
}

// IncBuffering records a buffering notification.
func IncBuffering(phase string) {
	PlaybackBufferingEvents.WithLabelValues(phase).Inc()
}

// IncRateChange records the outcome of a rate change.
func IncRateChange(result string) {
	PlaybackRateChanges.WithLabelValues(result).Inc()
}

// IncKeyExchange records the terminal state of a key exchange cycle.
func IncKeyExchange(outcome string) {
	PlaybackKeyExchanges.WithLabelValues(outcome).Inc()
}

// IncLoadFailure records a failed load session.
func IncLoadFailure(category string) {
	PlaybackLoadFailures.WithLabelValues(category).Inc()
}

// IncRedirect records a redirect candidate result.
func IncRedirect(result string) {
	PlaybackRedirects.WithLabelValues(result).Inc()
}

// AddAsyncOpsCancelled records cancelled deferred operations.
func AddAsyncOpsCancelled(n int) {
	if n > 0 {
		PlaybackAsyncOpsCancelled.Add(float64(n))
	}
}

// IncResumeCheckpoint records a resume checkpoint result.
func IncResumeCheckpoint(result string) {
	ResumeCheckpoints.WithLabelValues(result).Inc()
}
