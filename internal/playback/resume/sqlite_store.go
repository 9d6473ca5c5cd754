// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resume

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Metrological/qtwebkit/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements Store on a SQLite database.
type SqliteStore struct {
	DB  *sql.DB
	ttl time.Duration
}

// NewSqliteStore opens or creates the database at dbPath. An existing file
// must pass a quick integrity check first.
func NewSqliteStore(dbPath string, ttl time.Duration) (*SqliteStore, error) {
	if _, err := os.Stat(dbPath); err == nil {
		issues, err := sqlite.VerifyIntegrity(dbPath, sqlite.CheckQuick)
		if err != nil {
			return nil, fmt.Errorf("resume store: verify %s: %w", dbPath, err)
		}
		if len(issues) > 0 {
			return nil, fmt.Errorf("resume store: %s is corrupt: %s", dbPath, strings.Join(issues, "; "))
		}
	}

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db, ttl: ttl}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resume store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS resume_positions (
		media_url TEXT PRIMARY KEY,
		pos_seconds REAL NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resume_positions_updated ON resume_positions(updated_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Put(ctx context.Context, mediaURL string, state *State) error {
	query := `
	INSERT INTO resume_positions (media_url, pos_seconds, updated_at_ms)
	VALUES (?, ?, ?)
	ON CONFLICT(media_url) DO UPDATE SET
		pos_seconds = excluded.pos_seconds,
		updated_at_ms = excluded.updated_at_ms
	`
	_, err := s.DB.ExecContext(ctx, query, mediaURL, state.PosSeconds, state.UpdatedAt.UnixMilli())
	return err
}

func (s *SqliteStore) Get(ctx context.Context, mediaURL string) (*State, error) {
	var (
		st        State
		updatedMs int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT pos_seconds, updated_at_ms FROM resume_positions WHERE media_url = ?`, mediaURL,
	).Scan(&st.PosSeconds, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.UpdatedAt = time.UnixMilli(updatedMs)
	if expired(st.UpdatedAt, s.ttl, time.Now()) {
		return nil, nil
	}
	return &st, nil
}

func (s *SqliteStore) Delete(ctx context.Context, mediaURL string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM resume_positions WHERE media_url = ?", mediaURL)
	return err
}

// Prune removes positions older than the store TTL and reports how many
// were removed.
func (s *SqliteStore) Prune(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.ttl).UnixMilli()
	res, err := s.DB.ExecContext(ctx, "DELETE FROM resume_positions WHERE updated_at_ms < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}
