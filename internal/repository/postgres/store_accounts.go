package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/keyfold/keyfold/internal/model"
)

func (s *Store) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	const query = `
        INSERT INTO accounts (id, provider, external_account_id, user_id, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, provider, external_account_id, user_id, created_at
    `

	var saved model.Account
	err := s.q.QueryRow(ctx, query,
		account.ID, account.Provider, account.ExternalAccountID, account.UserID, account.CreatedAt,
	).Scan(
		&saved.ID, &saved.Provider, &saved.ExternalAccountID, &saved.UserID, &saved.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.Account{}, model.ErrDuplicate
		}
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return saved, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	const query = `
        SELECT id, provider, external_account_id, user_id, created_at
        FROM accounts WHERE id = $1
    `

	var account model.Account
	err := s.q.QueryRow(ctx, query, id).Scan(
		&account.ID, &account.Provider, &account.ExternalAccountID, &account.UserID, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by id: %w", err)
	}

	return account, nil
}

func (s *Store) GetAccountByProvider(ctx context.Context, provider, externalAccountID string) (model.Account, error) {
	const query = `
        SELECT id, provider, external_account_id, user_id, created_at
        FROM accounts WHERE provider = $1 AND external_account_id = $2
    `

	var account model.Account
	err := s.q.QueryRow(ctx, query, provider, externalAccountID).Scan(
		&account.ID, &account.Provider, &account.ExternalAccountID, &account.UserID, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by provider: %w", err)
	}

	return account, nil
}
