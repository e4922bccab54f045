package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account maps a provider identity to a user. Unique on
// (Provider, ExternalAccountID); the store's constraint, not client-side
// locking, is the authority when concurrent upserts race.
type Account struct {
	ID                uuid.UUID
	Provider          string
	ExternalAccountID string
	UserID            uuid.UUID
	CreatedAt         time.Time
}

// AccountStore persists provider-to-user account links.
type AccountStore interface {
	// CreateAccount inserts the account, returning ErrDuplicate if another
	// row already claims the same (provider, external account id) pair.
	CreateAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	GetAccountByProvider(ctx context.Context, provider, externalAccountID string) (Account, error)
}
