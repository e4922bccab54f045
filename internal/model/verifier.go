package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Verifier correlates a provider round-trip back to the sign-in attempt
// that started it. SessionID is set only on the link-additional-provider
// path, where the attempt belongs to an already-authenticated user.
// Verifiers are single use: the handshake deletes them on consumption.
type Verifier struct {
	ID        uuid.UUID
	SessionID *uuid.UUID
	Signature string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// VerifierStore persists sign-in verifiers, looked up by their opaque
// signature.
type VerifierStore interface {
	CreateVerifier(ctx context.Context, verifier Verifier) error
	GetVerifierBySignature(ctx context.Context, signature string) (Verifier, error)
	DeleteVerifier(ctx context.Context, id uuid.UUID) error
	DeleteExpiredVerifiers(ctx context.Context, now time.Time) (int64, error)
}
