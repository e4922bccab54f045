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

const refreshTokenColumns = `id, session_id, parent_id, expires_at, first_used_at, created_at`

func scanRefreshToken(row pgx.Row) (model.RefreshToken, error) {
	var token model.RefreshToken
	err := row.Scan(
		&token.ID, &token.SessionID, &token.ParentID,
		&token.ExpiresAt, &token.FirstUsedAt, &token.CreatedAt,
	)
	return token, err
}

func (s *Store) CreateRefreshToken(ctx context.Context, token model.RefreshToken) error {
	const query = `
        INSERT INTO refresh_tokens (id, session_id, parent_id, expires_at, first_used_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

	_, err := s.q.Exec(ctx, query,
		token.ID, token.SessionID, token.ParentID,
		token.ExpiresAt, token.FirstUsedAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, id uuid.UUID) (model.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id = $1`

	token, err := scanRefreshToken(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RefreshToken{}, model.ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("failed to get refresh token by id: %w", err)
	}
	return token, nil
}

// GetRefreshTokenForUpdate locks the token row for the duration of the
// enclosing transaction so a concurrent rotation of the same token blocks
// until this one commits.
func (s *Store) GetRefreshTokenForUpdate(ctx context.Context, id uuid.UUID) (model.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id = $1 FOR UPDATE`

	token, err := scanRefreshToken(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RefreshToken{}, model.ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("failed to lock refresh token: %w", err)
	}
	return token, nil
}

func (s *Store) GetActiveRefreshToken(ctx context.Context, sessionID uuid.UUID) (model.RefreshToken, error) {
	query := `
        SELECT ` + refreshTokenColumns + `
        FROM refresh_tokens
        WHERE session_id = $1 AND first_used_at IS NULL
        ORDER BY created_at DESC
        LIMIT 1
    `

	token, err := scanRefreshToken(s.q.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RefreshToken{}, model.ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("failed to get active refresh token: %w", err)
	}
	return token, nil
}

func (s *Store) GetRefreshTokensByParents(ctx context.Context, sessionID uuid.UUID, parentIDs []uuid.UUID) ([]model.RefreshToken, error) {
	query := `
        SELECT ` + refreshTokenColumns + `
        FROM refresh_tokens
        WHERE session_id = $1 AND parent_id = ANY($2)
        ORDER BY created_at
    `

	rows, err := s.q.Query(ctx, query, sessionID, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh tokens by parents: %w", err)
	}
	defer rows.Close()

	var tokens []model.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read refresh tokens: %w", err)
	}
	return tokens, nil
}

func (s *Store) MarkRefreshTokenUsed(ctx context.Context, id uuid.UUID, firstUsedAt time.Time) error {
	const query = `
        UPDATE refresh_tokens SET first_used_at = $2
        WHERE id = $1 AND first_used_at IS NULL
    `

	tag, err := s.q.Exec(ctx, query, id, firstUsedAt)
	if err != nil {
		return fmt.Errorf("failed to mark refresh token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) ForceRefreshTokensUsed(ctx context.Context, ids []uuid.UUID, firstUsedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	const query = `UPDATE refresh_tokens SET first_used_at = $2 WHERE id = ANY($1)`

	if _, err := s.q.Exec(ctx, query, ids, firstUsedAt); err != nil {
		return fmt.Errorf("failed to force refresh tokens used: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`

	tag, err := s.q.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
