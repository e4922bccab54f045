package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a single-use-then-rotated credential. Tokens form a
// forest per session: ParentID is a non-owning back-reference to the token
// that was consumed to mint this one, nil for a tree root.
//
// FirstUsedAt is nil while the token is active. Rotation sets it exactly
// once; subtree revocation forces it into the past so the token can never
// pass the reuse grace-period check again.
type RefreshToken struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	ParentID    *uuid.UUID
	ExpiresAt   time.Time
	FirstUsedAt *time.Time
	CreatedAt   time.Time
}

// Used reports whether the token has been consumed by a rotation.
func (t RefreshToken) Used() bool {
	return t.FirstUsedAt != nil
}

// RefreshTokenStore persists refresh tokens and the secondary lookups the
// rotator traverses. The (session, parent) lookup is what makes subtree
// revocation an indexed range scan instead of an in-memory graph walk.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	GetRefreshToken(ctx context.Context, id uuid.UUID) (RefreshToken, error)
	// GetRefreshTokenForUpdate behaves like GetRefreshToken but, inside a
	// transaction, locks the row so concurrent rotations serialize.
	GetRefreshTokenForUpdate(ctx context.Context, id uuid.UUID) (RefreshToken, error)
	// GetActiveRefreshToken returns the most recently created token of the
	// session with no FirstUsedAt set, or ErrNotFound.
	GetActiveRefreshToken(ctx context.Context, sessionID uuid.UUID) (RefreshToken, error)
	// GetRefreshTokensByParents returns every token of the session whose
	// ParentID is one of parentIDs.
	GetRefreshTokensByParents(ctx context.Context, sessionID uuid.UUID, parentIDs []uuid.UUID) ([]RefreshToken, error)
	// MarkRefreshTokenUsed sets FirstUsedAt if and only if it is unset.
	MarkRefreshTokenUsed(ctx context.Context, id uuid.UUID, firstUsedAt time.Time) error
	// ForceRefreshTokensUsed overwrites FirstUsedAt on the given tokens
	// unconditionally. Used by subtree revocation.
	ForceRefreshTokensUsed(ctx context.Context, ids []uuid.UUID, firstUsedAt time.Time) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}
