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

func (s *Store) CreateVerifier(ctx context.Context, verifier model.Verifier) error {
	const query = `
        INSERT INTO verifiers (id, session_id, signature, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `

	_, err := s.q.Exec(ctx, query,
		verifier.ID, verifier.SessionID, verifier.Signature, verifier.ExpiresAt, verifier.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create verifier: %w", err)
	}
	return nil
}

func (s *Store) GetVerifierBySignature(ctx context.Context, signature string) (model.Verifier, error) {
	const query = `
        SELECT id, session_id, signature, expires_at, created_at
        FROM verifiers WHERE signature = $1
    `

	var verifier model.Verifier
	err := s.q.QueryRow(ctx, query, signature).Scan(
		&verifier.ID, &verifier.SessionID, &verifier.Signature, &verifier.ExpiresAt, &verifier.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Verifier{}, model.ErrNotFound
		}
		return model.Verifier{}, fmt.Errorf("failed to get verifier by signature: %w", err)
	}

	return verifier, nil
}

func (s *Store) DeleteVerifier(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM verifiers WHERE id = $1`

	if _, err := s.q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete verifier: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredVerifiers(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM verifiers WHERE expires_at < $1`

	tag, err := s.q.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verifiers: %w", err)
	}
	return tag.RowsAffected(), nil
}
