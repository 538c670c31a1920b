// Package sqlite provides the SQLite-backed implementations of the session
// store and the slot correlation store, sharing one database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sdrlabs/leadqual/internal/storage"
)

// Store is a SQLite implementation of storage.SessionStore.
type Store struct {
	db *sql.DB
}

var _ storage.SessionStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_active_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slot_entries (
			conversation_id TEXT NOT NULL,
			display_key TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			PRIMARY KEY (conversation_id, display_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_slot_entries_expires ON slot_entries(expires_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *storage.Session) error {
	query := `INSERT INTO sessions (id, thread_id, created_at, last_active_at, expires_at)
	          VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.ThreadID, sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession returns the session or *storage.ErrSessionNotFound. An expired
// row is reported as absent; reclamation is left to DeleteExpired.
func (s *Store) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	query := `SELECT id, thread_id, created_at, last_active_at, expires_at
	          FROM sessions WHERE id = ?`

	var sess storage.Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &sess.ThreadID, &sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, &storage.ErrSessionNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if !sess.ExpiresAt.After(time.Now()) {
		return nil, &storage.ErrSessionNotFound{ID: id}
	}

	return &sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, lastActive, expiresAt time.Time) error {
	query := `UPDATE sessions SET last_active_at = ?, expires_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, lastActive, expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &storage.ErrSessionNotFound{ID: id}
	}

	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &storage.ErrSessionNotFound{ID: id}
	}

	return nil
}

// DeleteExpired reclaims expired sessions and expired slot entries in one
// sweep. Returns the number of sessions removed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM slot_entries WHERE expires_at <= ?`, now); err != nil {
		return rows, fmt.Errorf("failed to delete expired slot entries: %w", err)
	}

	return rows, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
