// Package slotmap holds the ephemeral correlation between the localized
// display string a user picks and the exact UTC interval the booking API
// needs. Entries are keyed per conversation, replaced wholesale on each
// availability fetch, and consumed read-once on booking.
package slotmap

import (
	"context"
	"time"

	"github.com/sdrlabs/leadqual/internal/domain"
)

// Entry binds one display string to its canonical UTC interval.
type Entry struct {
	DisplayKey string
	Start      time.Time
	End        time.Time
}

// Store is the correlation store capability. Implementations must key all
// state by conversation id; one conversation's entries are never visible
// to another.
type Store interface {
	// Put replaces the conversation's whole entry set with the given one.
	Put(ctx context.Context, conversationID string, entries []Entry) error

	// Take returns the entry for the display key and invalidates the
	// conversation's entire set, so a stale mapping can never serve a
	// second booking. A missing key is a *domain.SlotNotFoundError.
	Take(ctx context.Context, conversationID, displayKey string) (Entry, error)

	// Purge drops every entry for the conversation.
	Purge(ctx context.Context, conversationID string) error
}

// notFound builds the canonical miss error shared by implementations.
func notFound(conversationID, displayKey string) error {
	return &domain.SlotNotFoundError{ConversationID: conversationID, DisplayKey: displayKey}
}
