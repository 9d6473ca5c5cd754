// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

const defaultEventCapacity = 256

// Event is one player notification as seen by API clients.
type Event struct {
	Seq    uint64    `json:"seq"`
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Value  string    `json:"value,omitempty"`
	Number *float64  `json:"number,omitempty"`
}

// EventLog is the player's client for the daemon. It keeps the most
// recent notifications in a bounded ring and answers the client getters.
// Key requests are always claimed so they can be served over the API.
type EventLog struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	seq      uint64
	now      func() time.Time

	rate    float64
	looping bool
}

var (
	_ ports.Client        = (*EventLog)(nil)
	_ ports.StallObserver = (*EventLog)(nil)
)

// NewEventLog creates a log holding at most capacity events.
func NewEventLog(capacity int, looping bool) *EventLog {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &EventLog{capacity: capacity, now: time.Now, rate: 1, looping: looping}
}

func (l *EventLog) add(kind, value string, number *float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.events = append(l.events, Event{Seq: l.seq, At: l.now(), Kind: kind, Value: value, Number: number})
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = slices.Delete(l.events, 0, over)
	}
}

// Since returns the events with a sequence number greater than seq.
func (l *EventLog) Since(seq uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, _ := slices.BinarySearchFunc(l.events, seq+1, func(e Event, target uint64) int {
		switch {
		case e.Seq < target:
			return -1
		case e.Seq > target:
			return 1
		}
		return 0
	})
	return slices.Clone(l.events[i:])
}

// SetRequestedRate records the rate the API last asked for.
func (l *EventLog) SetRequestedRate(rate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rate = rate
}

// SetLooping toggles restart at end of stream.
func (l *EventLog) SetLooping(looping bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.looping = looping
}

func (l *EventLog) NetworkStateChanged(s model.NetworkState) { l.add("networkState", s.String(), nil) }
func (l *EventLog) ReadyStateChanged(s model.ReadyState)     { l.add("readyState", s.String(), nil) }
func (l *EventLog) TimeChanged()                             { l.add("timeChanged", "", nil) }
func (l *EventLog) DurationChanged()                         { l.add("durationChanged", "", nil) }
func (l *EventLog) RateChanged()                             { l.add("rateChanged", "", nil) }
func (l *EventLog) PlaybackStateChanged()                    { l.add("playbackStateChanged", "", nil) }
func (l *EventLog) VolumeChanged(v float64)                  { l.add("volumeChanged", "", &v) }

func (l *EventLog) MuteChanged(muted bool) {
	value := "false"
	if muted {
		value = "true"
	}
	l.add("muteChanged", value, nil)
}

// TracksChanged records the stream counts as "video/audio/text".
func (l *EventLog) TracksChanged(t model.Tracks) {
	l.add("tracksChanged", fmt.Sprintf("%d/%d/%d", t.Video, t.Audio, t.Text), nil)
}

// KeyNeeded claims the request; clients pick it up from the snapshot.
func (l *EventLog) KeyNeeded([]byte) bool {
	l.add("keyNeeded", "", nil)
	return true
}

func (l *EventLog) Stalled(err error) {
	l.add("stalled", err.Error(), nil)
}

func (l *EventLog) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

func (l *EventLog) Looping() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.looping
}
