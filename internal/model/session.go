package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is a user's authenticated login instance. It is the root of a
// refresh-token forest and exclusively owns every token in it: deleting a
// session cascades to its tokens.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Valid reports whether the session is still usable at the given instant.
func (s Session) Valid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	// DeleteSession removes the session and every refresh token that
	// belongs to it. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id uuid.UUID) error
	// DeleteSessionsByUser removes all sessions owned by the user,
	// cascading to their tokens, and reports how many were deleted.
	DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
