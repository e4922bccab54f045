package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VerificationCode is the hashed one-time code a client exchanges for a
// session. At most one live code exists per account: storing a new one
// replaces the previous row. Only the digest is ever persisted.
//
// VerifierID references the (already deleted) verifier that produced the
// code, kept for audit linkage only.
type VerificationCode struct {
	AccountID  uuid.UUID
	Provider   string
	CodeHash   []byte
	VerifierID uuid.UUID
	Attempts   int32
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// VerificationCodeStore persists one-time verification codes keyed by
// account.
type VerificationCodeStore interface {
	// UpsertVerificationCode stores the code, replacing any prior live
	// code for the same account.
	UpsertVerificationCode(ctx context.Context, code VerificationCode) error
	GetVerificationCodeByAccount(ctx context.Context, accountID uuid.UUID) (VerificationCode, error)
	DeleteVerificationCode(ctx context.Context, accountID uuid.UUID) error
	// IncrementVerificationCodeAttempts bumps the failure counter and
	// returns the new value.
	IncrementVerificationCodeAttempts(ctx context.Context, accountID uuid.UUID) (int32, error)
	DeleteExpiredVerificationCodes(ctx context.Context, now time.Time) (int64, error)
}
