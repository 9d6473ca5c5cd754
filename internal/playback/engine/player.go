// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Metrological/qtwebkit/internal/log"
	xnet "github.com/Metrological/qtwebkit/internal/platform/net"
	"github.com/Metrological/qtwebkit/internal/playback/keygate"
	"github.com/Metrological/qtwebkit/internal/playback/model"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
	"github.com/Metrological/qtwebkit/internal/telemetry"
)

// MediaPlayer is the capability set offered to embedders.
type MediaPlayer interface {
	Load(ctx context.Context, url string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, t float64) error
	SetRate(ctx context.Context, rate float64) error
	Buffered(ctx context.Context) (model.TimeRanges, error)
	Duration(ctx context.Context) (float64, error)
	CurrentTime(ctx context.Context) (float64, error)
}

var _ MediaPlayer = (*Player)(nil)

// PositionRecorder remembers playback positions across loads of the same media.
type PositionRecorder interface {
	Lookup(ctx context.Context, mediaURL string) (float64, bool)
	Offer(mediaURL string, position float64)
	Flush(ctx context.Context) error
}

// PlayerOptions configure a Player.
type PlayerOptions struct {
	Engine Options
	// Positions enables resume. Nil disables it.
	Positions          PositionRecorder
	CheckpointInterval time.Duration
}

// Player owns one engine and the control loop it runs on. It is safe for
// concurrent use.
type Player struct {
	id     string
	loop   *controlLoop
	eng    *Engine
	tracer trace.Tracer
	logger zerolog.Logger

	positions  PositionRecorder
	checkpoint RepeatingTimer
	interval   time.Duration
	// resumeAt is the position to restore once the new load can play. Loop only.
	resumeAt  float64
	hasResume bool

	closeOnce sync.Once
	closeErr  error
}

// NewPlayer starts a player. Close must be called to stop its goroutines.
func NewPlayer(client ports.Client, factory ports.Factory, opts PlayerOptions) *Player {
	id := uuid.NewString()
	p := &Player{
		id:        id,
		loop:      newControlLoop(),
		tracer:    telemetry.Tracer("mediaplayer/player"),
		logger:    log.WithComponent("player").With().Str(log.FieldSessionID, id).Logger(),
		positions: opts.Positions,
		interval:  opts.CheckpointInterval,
	}
	if p.interval <= 0 {
		p.interval = 5 * time.Second
	}
	p.eng = New(&playerClient{Client: client, p: p}, factory, p.loop, opts.Engine)
	p.eng.SetLogger(log.WithComponent("playback").With().Str(log.FieldSessionID, id).Logger())
	if p.positions != nil {
		p.checkpoint = p.loop.NewRepeatingTimer(p.recordPosition)
	}
	return p
}

// SessionID identifies this player in logs, traces and the API.
func (p *Player) SessionID() string { return p.id }

// call runs fn on the control loop inside a span.
func (p *Player) call(ctx context.Context, name string, fn func(span trace.Span) error) error {
	ctx = log.ContextWithSessionID(ctx, p.id)
	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(telemetry.SessionAttributes(p.id, "")...))
	defer span.End()

	var opErr error
	if err := p.loop.Call(ctx, func() {
		opErr = fn(span)
		st := p.eng.State()
		span.SetAttributes(telemetry.StateAttributes(st.NetworkState.String(), st.ReadyState.String(), p.eng.Rate())...)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if opErr != nil {
		span.RecordError(opErr)
		span.SetAttributes(telemetry.ErrorAttributes(opErr, name)...)
		span.SetStatus(codes.Error, opErr.Error())
		logger := log.WithComponentFromContext(ctx, "player")
		logger.Debug().Err(opErr).Str("op", name).Msg("operation rejected")
	}
	return opErr
}

// query runs fn on the control loop and returns its result. When ctx ends
// first, fn may still run later and its result is dropped.
func query[T any](ctx context.Context, p *Player, name string, fn func(span trace.Span) (T, error)) (T, error) {
	res := make(chan T, 1)
	err := p.call(ctx, name, func(span trace.Span) error {
		v, err := fn(span)
		res <- v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return <-res, nil
}

// Load starts loading url, restoring a recorded position when resume is enabled.
func (p *Player) Load(ctx context.Context, url string) error {
	resumeAt, hasResume := 0.0, false
	if p.positions != nil {
		if u, err := xnet.ParseMediaURL(url); err == nil {
			resumeAt, hasResume = p.positions.Lookup(ctx, u.String())
		}
	}
	return p.call(ctx, "player.load", func(span trace.Span) error {
		span.SetAttributes(telemetry.SessionAttributes(p.id, xnet.SanitizeURL(url))...)
		p.recordPosition()
		if err := p.eng.Load(url); err != nil {
			return err
		}
		p.resumeAt, p.hasResume = resumeAt, hasResume && resumeAt > 0
		if p.hasResume {
			p.logger.Info().Float64(log.FieldPosition, resumeAt).Msg("resume position found")
		}
		if p.checkpoint != nil {
			p.checkpoint.StartRepeating(p.interval)
		}
		return nil
	})
}

func (p *Player) Play(ctx context.Context) error {
	return p.call(ctx, "player.play", func(trace.Span) error { return p.eng.Play() })
}

func (p *Player) Pause(ctx context.Context) error {
	return p.call(ctx, "player.pause", func(trace.Span) error {
		err := p.eng.Pause()
		p.recordPosition()
		return err
	})
}

func (p *Player) Seek(ctx context.Context, t float64) error {
	return p.call(ctx, "player.seek", func(span trace.Span) error {
		span.SetAttributes(telemetry.SeekAttributes(t, p.eng.CurrentTime())...)
		return p.eng.Seek(t)
	})
}

func (p *Player) SetRate(ctx context.Context, rate float64) error {
	return p.call(ctx, "player.set_rate", func(trace.Span) error { return p.eng.SetRate(rate) })
}

func (p *Player) SetVolume(ctx context.Context, v float64) error {
	return p.call(ctx, "player.set_volume", func(trace.Span) error { return p.eng.SetVolume(v) })
}

func (p *Player) SetMuted(ctx context.Context, muted bool) error {
	return p.call(ctx, "player.set_muted", func(trace.Span) error { return p.eng.SetMuted(muted) })
}

func (p *Player) SetPreload(ctx context.Context, preload model.Preload) error {
	return p.call(ctx, "player.set_preload", func(trace.Span) error {
		p.eng.SetPreload(preload)
		return nil
	})
}

func (p *Player) PrepareToPlay(ctx context.Context) error {
	return p.call(ctx, "player.prepare", func(trace.Span) error {
		p.eng.PrepareToPlay()
		return nil
	})
}

func (p *Player) CancelLoad(ctx context.Context) error {
	return p.call(ctx, "player.cancel_load", func(trace.Span) error {
		p.eng.CancelLoad()
		return nil
	})
}

// Reconfig holds the settings that may change while playing.
type Reconfig struct {
	PreservesPitch bool
	MaxRate        float64
	OriginPolicy   xnet.OriginPolicy
}

// Reconfigure applies settings that may change while playing. The origin
// policy affects redirects handled from now on.
func (p *Player) Reconfigure(ctx context.Context, rc Reconfig) error {
	return p.call(ctx, "player.reconfigure", func(trace.Span) error {
		p.eng.SetPreservesPitch(rc.PreservesPitch)
		p.eng.SetMaxRate(rc.MaxRate)
		p.eng.SetOriginPolicy(rc.OriginPolicy)
		return nil
	})
}

func (p *Player) Buffered(ctx context.Context) (model.TimeRanges, error) {
	return query(ctx, p, "player.buffered", func(trace.Span) (model.TimeRanges, error) {
		return p.eng.Buffered(), nil
	})
}

func (p *Player) Duration(ctx context.Context) (float64, error) {
	return query(ctx, p, "player.duration", func(trace.Span) (float64, error) {
		return p.eng.Duration(), nil
	})
}

func (p *Player) CurrentTime(ctx context.Context) (float64, error) {
	return query(ctx, p, "player.current_time", func(trace.Span) (float64, error) {
		return p.eng.CurrentTime(), nil
	})
}

// GenerateKeyRequest returns the pending key request for keySystem.
func (p *Player) GenerateKeyRequest(ctx context.Context, keySystem string) (keygate.Request, error) {
	return query(ctx, p, "player.generate_key_request", func(trace.Span) (keygate.Request, error) {
		return p.eng.GenerateKeyRequest(keySystem)
	})
}

// UpdateKey delivers a license to the pending key request.
func (p *Player) UpdateKey(ctx context.Context, sessionID string, license []byte) error {
	return p.call(ctx, "player.update_key", func(trace.Span) error { return p.eng.UpdateKey(sessionID, license) })
}

// ReleaseKeys abandons the pending key request.
func (p *Player) ReleaseKeys(ctx context.Context) (bool, error) {
	return query(ctx, p, "player.release_keys", func(trace.Span) (bool, error) {
		return p.eng.ReleaseKeys(), nil
	})
}

// KeyRequestView is the JSON form of a pending key request.
type KeyRequestView struct {
	SessionID  string `json:"sessionId"`
	Generation uint64 `json:"generation"`
	InitData   []byte `json:"initData"`
}

// Snapshot is a consistent view of the player state.
type Snapshot struct {
	SessionID     string           `json:"sessionId"`
	URL           string           `json:"url,omitempty"`
	NetworkState  string           `json:"networkState"`
	ReadyState    string           `json:"readyState"`
	Paused        bool             `json:"paused"`
	Seeking       bool             `json:"seeking"`
	Live          bool             `json:"live"`
	EndReached    bool             `json:"endReached"`
	Rate          float64          `json:"rate"`
	Volume        float64          `json:"volume"`
	Muted         bool             `json:"muted"`
	CurrentTime   float64          `json:"currentTime"`
	Duration      float64          `json:"duration"`
	DurationKnown bool             `json:"durationKnown"`
	Buffered      model.TimeRanges `json:"buffered"`
	Seekable      model.TimeRanges `json:"seekable"`
	HasVideo      bool             `json:"hasVideo"`
	HasAudio      bool             `json:"hasAudio"`
	KeyRequest    *KeyRequestView  `json:"keyRequest,omitempty"`
}

// Snapshot reads the whole player state in one control loop turn.
func (p *Player) Snapshot(ctx context.Context) (Snapshot, error) {
	return query(ctx, p, "player.snapshot", func(trace.Span) (Snapshot, error) {
		st := p.eng.State()
		d := p.eng.Duration()
		s := Snapshot{
			SessionID:     p.id,
			URL:           p.eng.urlString(),
			NetworkState:  st.NetworkState.String(),
			ReadyState:    st.ReadyState.String(),
			Paused:        p.eng.Paused(),
			Seeking:       st.Seeking,
			Live:          p.eng.IsLiveStream(),
			EndReached:    st.IsEndReached,
			Rate:          p.eng.Rate(),
			Volume:        p.eng.Volume(),
			Muted:         p.eng.Muted(),
			CurrentTime:   p.eng.CurrentTime(),
			DurationKnown: !math.IsInf(d, 1),
			Buffered:      p.eng.Buffered(),
			Seekable:      p.eng.Seekable(),
			HasVideo:      p.eng.Tracks().HasVideo(),
			HasAudio:      p.eng.Tracks().HasAudio(),
		}
		if s.DurationKnown {
			s.Duration = d
		}
		if req, ok := p.eng.PendingKeyRequest(); ok {
			s.KeyRequest = &KeyRequestView{SessionID: req.SessionID, Generation: req.Generation, InitData: req.InitData}
		}
		return s, nil
	})
}

// recordPosition offers the current position to the resume recorder. Loop only.
func (p *Player) recordPosition() {
	if p.positions == nil || p.eng.url == nil || p.eng.IsLiveStream() || p.eng.st.ErrorOccurred {
		return
	}
	if p.eng.st.Seeking || p.hasResume {
		return
	}
	pos := p.eng.CurrentTime()
	if p.eng.st.IsEndReached {
		// Finished media starts from the beginning next time.
		pos = 0
	}
	p.positions.Offer(p.eng.url.String(), pos)
}

// resume seeks to the recorded position once the media can play. Loop only.
func (p *Player) resume() {
	if !p.hasResume {
		return
	}
	at := p.resumeAt
	p.hasResume = false
	if err := p.eng.Seek(at); err != nil {
		p.logger.Warn().Err(err).Float64(log.FieldPosition, at).Msg("resume seek failed")
		return
	}
	p.logger.Info().Float64(log.FieldPosition, at).Msg("resumed playback position")
}

// Close tears the player down and stops its goroutines.
func (p *Player) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		var engErr error
		// Teardown must reach the loop even when ctx is already done.
		err := p.loop.Call(context.WithoutCancel(ctx), func() {
			if p.checkpoint != nil {
				p.checkpoint.Stop()
			}
			p.recordPosition()
			engErr = p.eng.Close()
		})
		p.loop.Close()
		if err == nil {
			err = engErr
		}
		if p.positions != nil {
			err = errors.Join(err, p.positions.Flush(ctx))
		}
		p.closeErr = err
		p.logger.Debug().Err(err).Msg("player closed")
	})
	return p.closeErr
}

// playerClient intercepts client notifications the player itself needs.
type playerClient struct {
	ports.Client
	p *Player
}

func (c *playerClient) ReadyStateChanged(s model.ReadyState) {
	c.Client.ReadyStateChanged(s)
	if c.p.hasResume && s >= model.HaveFutureData {
		// Not re-entrant with the reconciliation that reported s.
		c.p.loop.Post(c.p.resume)
	}
}

func (c *playerClient) TimeChanged() {
	c.Client.TimeChanged()
	c.p.recordPosition()
}

func (c *playerClient) TracksChanged(t model.Tracks) {
	if obs, ok := c.Client.(ports.TrackObserver); ok {
		obs.TracksChanged(t)
	}
}

func (c *playerClient) Stalled(err error) {
	if obs, ok := c.Client.(ports.StallObserver); ok {
		obs.Stalled(err)
	}
}
