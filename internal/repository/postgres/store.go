package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/keyfold/keyfold/internal/model"
)

var _ model.TokenStore = (*Store)(nil)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// querier is what individual statements run against: the pool outside a
// transaction, the pgx.Tx inside one.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements model.TokenStore on postgres.
type Store struct {
	db DB
	q  querier
}

// NewStore creates a Store backed by db.
func NewStore(db DB) *Store {
	return &Store{db: db, q: db}
}

// InTx runs fn inside a serializable transaction. A Store whose db is nil
// is already transaction-bound; nested calls reuse the enclosing
// transaction.
func (s *Store) InTx(ctx context.Context, fn func(model.TokenStore) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
