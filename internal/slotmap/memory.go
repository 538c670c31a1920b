package slotmap

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with per-conversation TTL. The TTL
// should exceed the run polling ceiling by a safety margin so a valid
// mapping is never lost mid-turn.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entrySet
}

type entrySet struct {
	byKey     map[string]Entry
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a MemoryStore with the given entry TTL.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entrySet),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Put(_ context.Context, conversationID string, entries []Entry) error {
	byKey := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byKey[e.DisplayKey] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A new fetch always replaces the prior set for this conversation.
	s.entries[conversationID] = &entrySet{
		byKey:     byKey,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, conversationID, displayKey string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.entries[conversationID]
	if !ok || s.now().After(set.expiresAt) {
		delete(s.entries, conversationID)
		return Entry{}, notFound(conversationID, displayKey)
	}

	e, ok := set.byKey[displayKey]
	if !ok {
		return Entry{}, notFound(conversationID, displayKey)
	}

	// Read-once: consuming any entry invalidates the whole set.
	delete(s.entries, conversationID)
	return e, nil
}

func (s *MemoryStore) Purge(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
	return nil
}
