package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sdrlabs/leadqual/internal/domain"
	"github.com/sdrlabs/leadqual/internal/slotmap"
)

// SlotStore is a SQLite implementation of slotmap.Store, for deployments
// where the turn driver runs behind more than one process and an in-memory
// mapping would not be shared.
type SlotStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ slotmap.Store = (*SlotStore)(nil)

// SlotStoreOption configures a SlotStore.
type SlotStoreOption func(*SlotStore)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) SlotStoreOption {
	return func(s *SlotStore) {
		s.now = now
	}
}

// NewSlotStore builds a slot store over the given Store's database.
func NewSlotStore(store *Store, ttl time.Duration, opts ...SlotStoreOption) *SlotStore {
	s := &SlotStore{db: store.db, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put replaces the conversation's whole entry set.
func (s *SlotStore) Put(ctx context.Context, conversationID string, entries []slotmap.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM slot_entries WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to clear slot entries: %w", err)
	}

	expiresAt := s.now().Add(s.ttl)
	query := `INSERT INTO slot_entries (conversation_id, display_key, start_time, end_time, expires_at)
	          VALUES (?, ?, ?, ?, ?)`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query,
			conversationID, e.DisplayKey, e.Start.UTC(), e.End.UTC(), expiresAt); err != nil {
			return fmt.Errorf("failed to insert slot entry: %w", err)
		}
	}

	return tx.Commit()
}

// Take returns the entry for the display key and deletes the conversation's
// entire set, so the mapping cannot serve a second booking.
func (s *SlotStore) Take(ctx context.Context, conversationID, displayKey string) (slotmap.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return slotmap.Entry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var entry slotmap.Entry
	err = tx.QueryRowContext(ctx,
		`SELECT display_key, start_time, end_time FROM slot_entries
		 WHERE conversation_id = ? AND display_key = ? AND expires_at > ?`,
		conversationID, displayKey, s.now()).Scan(&entry.DisplayKey, &entry.Start, &entry.End)

	if err == sql.ErrNoRows {
		return slotmap.Entry{}, &domain.SlotNotFoundError{ConversationID: conversationID, DisplayKey: displayKey}
	}
	if err != nil {
		return slotmap.Entry{}, fmt.Errorf("failed to look up slot entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM slot_entries WHERE conversation_id = ?`, conversationID); err != nil {
		return slotmap.Entry{}, fmt.Errorf("failed to consume slot entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return slotmap.Entry{}, fmt.Errorf("failed to commit slot take: %w", err)
	}

	entry.Start = entry.Start.UTC()
	entry.End = entry.End.UTC()
	return entry, nil
}

// Purge drops every entry for the conversation.
func (s *SlotStore) Purge(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM slot_entries WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to purge slot entries: %w", err)
	}
	return nil
}
