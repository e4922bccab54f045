package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keyfold/keyfold/internal/model"
)

// UpsertVerificationCode stores the code for its account. The primary key
// on account_id makes "at most one live code per account" a property of
// the schema: a new code simply replaces the old row.
func (s *Store) UpsertVerificationCode(ctx context.Context, code model.VerificationCode) error {
	const query = `
        INSERT INTO verification_codes (account_id, provider, code_hash, verifier_id, attempts, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (account_id) DO UPDATE SET
            provider = EXCLUDED.provider,
            code_hash = EXCLUDED.code_hash,
            verifier_id = EXCLUDED.verifier_id,
            attempts = EXCLUDED.attempts,
            expires_at = EXCLUDED.expires_at,
            created_at = EXCLUDED.created_at
    `

	_, err := s.q.Exec(ctx, query,
		code.AccountID, code.Provider, code.CodeHash, code.VerifierID,
		code.Attempts, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert verification code: %w", err)
	}
	return nil
}

func (s *Store) GetVerificationCodeByAccount(ctx context.Context, accountID uuid.UUID) (model.VerificationCode, error) {
	const query = `
        SELECT account_id, provider, code_hash, verifier_id, attempts, expires_at, created_at
        FROM verification_codes WHERE account_id = $1
    `

	var code model.VerificationCode
	err := s.q.QueryRow(ctx, query, accountID).Scan(
		&code.AccountID, &code.Provider, &code.CodeHash, &code.VerifierID,
		&code.Attempts, &code.ExpiresAt, &code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VerificationCode{}, model.ErrNotFound
		}
		return model.VerificationCode{}, fmt.Errorf("failed to get verification code: %w", err)
	}

	return code, nil
}

func (s *Store) DeleteVerificationCode(ctx context.Context, accountID uuid.UUID) error {
	const query = `DELETE FROM verification_codes WHERE account_id = $1`

	if _, err := s.q.Exec(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	return nil
}

func (s *Store) IncrementVerificationCodeAttempts(ctx context.Context, accountID uuid.UUID) (int32, error) {
	const query = `
        UPDATE verification_codes SET attempts = attempts + 1
        WHERE account_id = $1
        RETURNING attempts
    `

	var attempts int32
	err := s.q.QueryRow(ctx, query, accountID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment code attempts: %w", err)
	}
	return attempts, nil
}

func (s *Store) DeleteExpiredVerificationCodes(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM verification_codes WHERE expires_at < $1`

	tag, err := s.q.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
