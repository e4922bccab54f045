package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/model"
	"github.com/keyfold/keyfold/internal/repository/memory"
	"github.com/keyfold/keyfold/internal/testutil"
)

func TestAccounts_Upsert_CreatesUserOnFirstContact(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := NewAccounts(store, testutil.MakeNoopLogger())

	account, err := a.Upsert(ctx, "google", "ext-1", model.Profile{Name: "n", Email: "n@example.com"}, nil)
	require.NoError(t, err)

	user, err := store.GetUser(ctx, account.UserID)
	require.NoError(t, err)
	assert.Equal(t, "n", user.Name)
	assert.Equal(t, "n@example.com", user.Email)
}

func TestAccounts_Upsert_ReturnsExistingLink(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := NewAccounts(store, testutil.MakeNoopLogger())

	first, err := a.Upsert(ctx, "google", "ext-1", model.Profile{Name: "n"}, nil)
	require.NoError(t, err)

	// Profile differences on a later sign-in do not touch the user.
	second, err := a.Upsert(ctx, "google", "ext-1", model.Profile{Name: "other"}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.UserID, second.UserID)

	user, err := store.GetUser(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "n", user.Name)
}

func TestAccounts_Upsert_SameProviderDifferentIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := NewAccounts(store, testutil.MakeNoopLogger())

	first, err := a.Upsert(ctx, "google", "ext-1", model.Profile{}, nil)
	require.NoError(t, err)
	second, err := a.Upsert(ctx, "google", "ext-2", model.Profile{}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.UserID, second.UserID)
}

func TestAccounts_Upsert_LinksToSession(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now()

	a := NewAccounts(store, testutil.MakeNoopLogger())

	user, err := store.CreateUser(ctx, model.User{ID: uuid.New(), CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	session := model.Session{ID: uuid.New(), UserID: user.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	require.NoError(t, store.CreateSession(ctx, session))

	account, err := a.Upsert(ctx, "github", "ext-1", model.Profile{}, &session.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, account.UserID)
}

func TestAccounts_Upsert_DeadSessionLink(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := NewAccounts(store, testutil.MakeNoopLogger())

	missing := uuid.New()
	_, err := a.Upsert(ctx, "github", "ext-1", model.Profile{}, &missing)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}
