package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keyfold/keyfold/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	const query = `
        INSERT INTO users (id, name, email, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, name, email, created_at, updated_at
    `

	var saved model.User
	err := s.q.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.CreatedAt, user.UpdatedAt,
	).Scan(
		&saved.ID, &saved.Name, &saved.Email, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return saved, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	const query = `
        SELECT id, name, email, created_at, updated_at
        FROM users WHERE id = $1
    `

	var user model.User
	err := s.q.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}

	return user, nil
}
