package slotmap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sdrlabs/leadqual/internal/domain"
)

func TestMemoryStore_TakeConsumesWholeSet(t *testing.T) {
	s := NewMemoryStore(10 * time.Minute)
	ctx := context.Background()

	start := time.Date(2025, 10, 28, 15, 0, 0, 0, time.UTC)
	entries := []Entry{
		{DisplayKey: "28 de Outubro às 12:00", Start: start, End: start.Add(30 * time.Minute)},
		{DisplayKey: "28 de Outubro às 12:30", Start: start.Add(30 * time.Minute), End: start.Add(time.Hour)},
	}
	if err := s.Put(ctx, "thread_1", entries); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Take(ctx, "thread_1", "28 de Outubro às 12:00")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if !got.Start.Equal(start) {
		t.Errorf("Take() start = %v, want %v", got.Start, start)
	}

	// The sibling entry must be gone too.
	_, err = s.Take(ctx, "thread_1", "28 de Outubro às 12:30")
	var notFound *domain.SlotNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Take() after consume error = %v, want SlotNotFoundError", err)
	}
}

func TestMemoryStore_PutReplacesPriorSet(t *testing.T) {
	s := NewMemoryStore(10 * time.Minute)
	ctx := context.Background()

	old := time.Date(2025, 10, 28, 15, 0, 0, 0, time.UTC)
	if err := s.Put(ctx, "thread_1", []Entry{{DisplayKey: "28 de Outubro às 12:00", Start: old, End: old.Add(30 * time.Minute)}}); err != nil {
		t.Fatal(err)
	}

	fresh := time.Date(2025, 10, 29, 17, 0, 0, 0, time.UTC)
	if err := s.Put(ctx, "thread_1", []Entry{{DisplayKey: "29 de Outubro às 14:00", Start: fresh, End: fresh.Add(30 * time.Minute)}}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Take(ctx, "thread_1", "28 de Outubro às 12:00"); err == nil {
		t.Fatal("stale display key from an earlier fetch must not resolve")
	}
}

func TestMemoryStore_ConversationIsolation(t *testing.T) {
	s := NewMemoryStore(10 * time.Minute)
	ctx := context.Background()

	start := time.Date(2025, 10, 28, 15, 0, 0, 0, time.UTC)
	if err := s.Put(ctx, "thread_a", []Entry{{DisplayKey: "28 de Outubro às 12:00", Start: start, End: start.Add(30 * time.Minute)}}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Take(ctx, "thread_b", "28 de Outubro às 12:00"); err == nil {
		t.Fatal("entries must not leak across conversations")
	}

	// thread_a's set survives thread_b's miss.
	if _, err := s.Take(ctx, "thread_a", "28 de Outubro às 12:00"); err != nil {
		t.Fatalf("Take() error = %v", err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	now := time.Date(2025, 10, 28, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(10*time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	start := now.Add(24 * time.Hour)
	if err := s.Put(ctx, "thread_1", []Entry{{DisplayKey: "29 de Outubro às 09:00", Start: start, End: start.Add(30 * time.Minute)}}); err != nil {
		t.Fatal(err)
	}

	now = now.Add(11 * time.Minute)

	if _, err := s.Take(ctx, "thread_1", "29 de Outubro às 09:00"); err == nil {
		t.Fatal("expired entries must not resolve")
	}
}

func TestMemoryStore_Purge(t *testing.T) {
	s := NewMemoryStore(10 * time.Minute)
	ctx := context.Background()

	start := time.Date(2025, 10, 28, 15, 0, 0, 0, time.UTC)
	if err := s.Put(ctx, "thread_1", []Entry{{DisplayKey: "28 de Outubro às 12:00", Start: start, End: start.Add(30 * time.Minute)}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Purge(ctx, "thread_1"); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if _, err := s.Take(ctx, "thread_1", "28 de Outubro às 12:00"); err == nil {
		t.Fatal("purged entries must not resolve")
	}
}
