// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resume persists the last playback position of each media URL so a
// later load of the same media can continue where playback stopped.
package resume

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// Backend names accepted by NewStore.
const (
	BackendMemory = "memory"
	BackendSqlite = "sqlite"
	BackendRedis  = "redis"
	BackendFile   = "file"
)

var (
	// ErrUnknownBackend is returned by NewStore for unsupported backends.
	ErrUnknownBackend = errors.New("unknown resume store backend")
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("resume store closed")
)

// State is the recorded position of one media URL.
type State struct {
	PosSeconds float64   `json:"pos_seconds"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists resume states keyed by media URL. Get returns nil, nil when
// nothing is recorded.
type Store interface {
	Put(ctx context.Context, mediaURL string, state *State) error
	Get(ctx context.Context, mediaURL string) (*State, error)
	Delete(ctx context.Context, mediaURL string) error
	Close() error
}

// Config selects and tunes a store backend.
type Config struct {
	Backend string
	// Path is the database file for sqlite and the JSON file for file.
	Path      string
	RedisAddr string
	// TTL expires positions not updated for this long. Zero keeps them forever.
	TTL time.Duration
}

// NewStore creates the store selected by cfg.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.TTL), nil
	case BackendSqlite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("resume store: sqlite backend needs a path")
		}
		return NewSqliteStore(cfg.Path, cfg.TTL)
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("resume store: redis backend needs an address")
		}
		return NewRedisStore(RedisConfig{Addr: cfg.RedisAddr, TTL: cfg.TTL})
	case BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("resume store: file backend needs a path")
		}
		return NewFileStore(filepath.Clean(cfg.Path), cfg.TTL)
	default:
		return nil, fmt.Errorf("%w: %s (supported: memory, sqlite, redis, file)", ErrUnknownBackend, cfg.Backend)
	}
}

// expired reports whether a state recorded at updated is past ttl.
func expired(updated time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(updated) > ttl
}

// MemoryStore keeps states in a map.
type MemoryStore struct {
	mu   sync.RWMutex
	ttl  time.Duration
	data map[string]State
	now  func() time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		data: make(map[string]State),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, mediaURL string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return ErrStoreClosed
	}
	s.data[mediaURL] = *state
	return nil
}

func (s *MemoryStore) Get(_ context.Context, mediaURL string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, ErrStoreClosed
	}
	st, ok := s.data[mediaURL]
	if !ok || expired(st.UpdatedAt, s.ttl, s.now()) {
		return nil, nil
	}
	return &st, nil
}

func (s *MemoryStore) Delete(_ context.Context, mediaURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return ErrStoreClosed
	}
	delete(s.data, mediaURL)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}
