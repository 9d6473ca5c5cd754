// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// FileStore keeps all states in one JSON file. Every change rewrites the
// file atomically.
type FileStore struct {
	mu     sync.Mutex
	path   string
	ttl    time.Duration
	data   map[string]State
	closed bool
}

// NewFileStore loads path, or starts empty when it does not exist.
func NewFileStore(path string, ttl time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create resume store dir: %w", err)
	}
	s := &FileStore{path: path, ttl: ttl, data: make(map[string]State)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read resume store: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("decode resume store %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *FileStore) Put(_ context.Context, mediaURL string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	prev, had := s.data[mediaURL]
	s.data[mediaURL] = *state
	if err := s.writeLocked(); err != nil {
		if had {
			s.data[mediaURL] = prev
		} else {
			delete(s.data, mediaURL)
		}
		return err
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, mediaURL string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	st, ok := s.data[mediaURL]
	if !ok || expired(st.UpdatedAt, s.ttl, time.Now()) {
		return nil, nil
	}
	return &st, nil
}

func (s *FileStore) Delete(_ context.Context, mediaURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.data[mediaURL]; !ok {
		return nil
	}
	delete(s.data, mediaURL)
	return s.writeLocked()
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// writeLocked replaces the file with the current map: fsync, then rename.
func (s *FileStore) writeLocked() error {
	now := time.Now()
	for url, st := range s.data {
		if expired(st.UpdatedAt, s.ttl, now) {
			delete(s.data, url)
		}
	}

	pending, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending resume file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.data); err != nil {
		return fmt.Errorf("write resume file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace resume file: %w", err)
	}
	return nil
}
