package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrlabs/leadqual/internal/domain"
	"github.com/sdrlabs/leadqual/internal/slotmap"
	"github.com/sdrlabs/leadqual/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "leadqual.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	sess := &storage.Session{
		ID:           "sess_1",
		ThreadID:     "thread_abc",
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}
	require.NoError(t, store.CreateSession(ctx, sess))

	got, err := store.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "thread_abc", got.ThreadID)

	later := now.Add(time.Hour)
	require.NoError(t, store.TouchSession(ctx, "sess_1", later, later.Add(24*time.Hour)))

	got, err = store.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.LastActiveAt, time.Second)

	require.NoError(t, store.DeleteSession(ctx, "sess_1"))

	_, err = store.GetSession(ctx, "sess_1")
	var notFound *storage.ErrSessionNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestGetSession_ExpiredBehavesAsAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.CreateSession(ctx, &storage.Session{
		ID:           "sess_old",
		ThreadID:     "thread_old",
		CreatedAt:    now.Add(-48 * time.Hour),
		LastActiveAt: now.Add(-25 * time.Hour),
		ExpiresAt:    now.Add(-time.Hour),
	}))

	_, err := store.GetSession(ctx, "sess_old")
	var notFound *storage.ErrSessionNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestDeleteExpired_SweepsSessionsAndSlots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, &storage.Session{
		ID: "sess_dead", ThreadID: "t1",
		CreatedAt: now, LastActiveAt: now, ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.CreateSession(ctx, &storage.Session{
		ID: "sess_live", ThreadID: "t2",
		CreatedAt: now, LastActiveAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = store.GetSession(ctx, "sess_live")
	assert.NoError(t, err)
}

func TestTouchSession_UnknownIDIsNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.TouchSession(context.Background(), "missing", time.Now(), time.Now().Add(time.Hour))
	var notFound *storage.ErrSessionNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestSlotStore_TakeConsumesWholeSet(t *testing.T) {
	store := newTestStore(t)
	slots := NewSlotStore(store, 10*time.Minute)
	ctx := context.Background()

	start := time.Date(2026, 10, 28, 15, 0, 0, 0, time.UTC)
	entries := []slotmap.Entry{
		{DisplayKey: "28 de Outubro às 12:00", Start: start, End: start.Add(30 * time.Minute)},
		{DisplayKey: "28 de Outubro às 12:30", Start: start.Add(30 * time.Minute), End: start.Add(time.Hour)},
	}
	require.NoError(t, slots.Put(ctx, "thread_1", entries))

	got, err := slots.Take(ctx, "thread_1", "28 de Outubro às 12:00")
	require.NoError(t, err)
	assert.True(t, got.Start.Equal(start), "start = %v", got.Start)
	assert.True(t, got.End.Equal(start.Add(30*time.Minute)), "end = %v", got.End)

	// The sibling entry must be gone too.
	_, err = slots.Take(ctx, "thread_1", "28 de Outubro às 12:30")
	var notFound *domain.SlotNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSlotStore_ConversationIsolation(t *testing.T) {
	store := newTestStore(t)
	slots := NewSlotStore(store, 10*time.Minute)
	ctx := context.Background()

	start := time.Date(2026, 11, 3, 13, 0, 0, 0, time.UTC)
	require.NoError(t, slots.Put(ctx, "thread_a", []slotmap.Entry{
		{DisplayKey: "3 de Novembro às 10:00", Start: start, End: start.Add(30 * time.Minute)},
	}))

	_, err := slots.Take(ctx, "thread_b", "3 de Novembro às 10:00")
	var notFound *domain.SlotNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "thread_b", notFound.ConversationID)

	_, err = slots.Take(ctx, "thread_a", "3 de Novembro às 10:00")
	assert.NoError(t, err)
}

func TestSlotStore_PutReplacesPriorSet(t *testing.T) {
	store := newTestStore(t)
	slots := NewSlotStore(store, 10*time.Minute)
	ctx := context.Background()

	start := time.Date(2026, 10, 28, 15, 0, 0, 0, time.UTC)
	require.NoError(t, slots.Put(ctx, "thread_1", []slotmap.Entry{
		{DisplayKey: "28 de Outubro às 12:00", Start: start, End: start.Add(30 * time.Minute)},
	}))
	require.NoError(t, slots.Put(ctx, "thread_1", []slotmap.Entry{
		{DisplayKey: "29 de Outubro às 09:00", Start: start.AddDate(0, 0, 1), End: start.AddDate(0, 0, 1).Add(30 * time.Minute)},
	}))

	_, err := slots.Take(ctx, "thread_1", "28 de Outubro às 12:00")
	assert.True(t, errors.As(err, new(*domain.SlotNotFoundError)), "stale entry survived replacement")
}

func TestSlotStore_TTLExpiry(t *testing.T) {
	store := newTestStore(t)

	current := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	slots := NewSlotStore(store, 5*time.Minute, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	start := time.Date(2026, 10, 28, 15, 0, 0, 0, time.UTC)
	require.NoError(t, slots.Put(ctx, "thread_1", []slotmap.Entry{
		{DisplayKey: "28 de Outubro às 12:00", Start: start, End: start.Add(30 * time.Minute)},
	}))

	current = current.Add(6 * time.Minute)

	_, err := slots.Take(ctx, "thread_1", "28 de Outubro às 12:00")
	var notFound *domain.SlotNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
