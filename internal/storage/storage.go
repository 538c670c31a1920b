// Package storage defines the persistence contracts for chat sessions.
// A session is the public handle the chat frontend holds; the thread id
// is the conversation-runtime resource it maps to.
package storage

import (
	"context"
	"time"
)

// Session binds a frontend session id to its runtime thread.
type Session struct {
	ID           string
	ThreadID     string
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
}

// SessionStore persists the session-to-thread binding. Expired sessions
// must behave as absent on read; DeleteExpired reclaims their rows.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	TouchSession(ctx context.Context, id string, lastActive, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Close() error
}

// ErrSessionNotFound is returned for unknown or expired session ids.
type ErrSessionNotFound struct {
	ID string
}

func (e *ErrSessionNotFound) Error() string {
	return "session " + e.ID + " not found"
}
