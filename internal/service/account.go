package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
)

// Accounts resolves external provider identities to local users. The
// (provider, external account id) pair is the stable key: the first
// sign-in creates a user, every later one reuses the linked account.
type Accounts struct {
	store  model.TokenStore
	logger *logger.Logger

	now func() time.Time
}

func NewAccounts(store model.TokenStore, l *logger.Logger) *Accounts {
	return &Accounts{
		store:  store,
		logger: l,
		now:    time.Now,
	}
}

// Upsert returns the account linked to the provider identity, creating
// the account and, unless sessionID attaches it to a signed-in user, a
// fresh user on first contact.
func (a *Accounts) Upsert(ctx context.Context, provider, externalAccountID string, profile model.Profile, sessionID *uuid.UUID) (model.Account, error) {
	var account model.Account

	err := a.store.InTx(ctx, func(tx model.TokenStore) error {
		var err error
		account, err = a.upsertIn(ctx, tx, provider, externalAccountID, profile, sessionID, a.now())
		return err
	})
	if errors.Is(err, model.ErrDuplicate) {
		// Lost a race with a concurrent first sign-in; the surviving
		// link is the answer.
		return a.store.GetAccountByProvider(ctx, provider, externalAccountID)
	}
	if err != nil {
		return model.Account{}, err
	}

	return account, nil
}

func (a *Accounts) upsertIn(ctx context.Context, st model.TokenStore, provider, externalAccountID string, profile model.Profile, sessionID *uuid.UUID, now time.Time) (model.Account, error) {
	account, err := st.GetAccountByProvider(ctx, provider, externalAccountID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Account{}, fmt.Errorf("get account by provider: %w", err)
	}

	var userID uuid.UUID
	if sessionID != nil {
		session, err := st.GetSession(ctx, *sessionID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.Account{}, model.ErrInvalidState
			}
			return model.Account{}, fmt.Errorf("get session: %w", err)
		}
		if !session.Valid(now) {
			return model.Account{}, model.ErrInvalidState
		}
		userID = session.UserID
	} else {
		user := model.User{
			ID:        uuid.New(),
			Name:      profile.Name,
			Email:     profile.Email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created, err := st.CreateUser(ctx, user)
		if err != nil {
			return model.Account{}, fmt.Errorf("create user: %w", err)
		}
		userID = created.ID

		a.logger.Debug("user created", "user_id", userID, "provider", provider)
	}

	account = model.Account{
		ID:                uuid.New(),
		Provider:          provider,
		ExternalAccountID: externalAccountID,
		UserID:            userID,
		CreatedAt:         now,
	}
	saved, err := st.CreateAccount(ctx, account)
	if err != nil {
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}
	account = saved

	a.logger.Debug("account linked", "account_id", account.ID, "provider", provider, "user_id", userID)

	return account, nil
}
