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

func newTestHandshake(store model.TokenStore) *Handshake {
	log := testutil.MakeNoopLogger()
	sessions := NewSessions(store, 720*time.Hour, log)
	rotator := newTestRotator(store)
	accounts := NewAccounts(store, log)
	return NewHandshake(store, sessions, rotator, accounts, HandshakeConfig{
		VerifierTTL:     2 * time.Minute,
		CodeTTL:         2 * time.Minute,
		MaxCodeAttempts: 5,
	}, log)
}

func setClock(h *Handshake, clock *time.Time) {
	at := func() time.Time { return *clock }
	h.now = at
	h.sessions.now = at
	h.rotator.now = at
	h.accounts.now = at
}

func TestHandshake_FullFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := time.Now()

	h := newTestHandshake(store)
	setClock(h, &clock)

	verifier, err := h.BeginVerifier(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, verifier.Signature)

	completion, err := h.Complete(ctx, "google", "ext-1", model.Profile{Name: "n", Email: "n@example.com"}, verifier.Signature)
	require.NoError(t, err)
	assert.Len(t, completion.Code, 8)

	session, token, err := h.ExchangeCode(ctx, completion.Account.ID, completion.Code)
	require.NoError(t, err)
	assert.Equal(t, session.ID, token.SessionID)
	assert.Nil(t, token.ParentID)

	// The code is single use.
	_, _, err = h.ExchangeCode(ctx, completion.Account.ID, completion.Code)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestHandshake_Complete_UnknownSignature(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	h := newTestHandshake(store)

	_, err := h.Complete(ctx, "google", "ext-1", model.Profile{}, "no-such-signature")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestHandshake_Complete_ExpiredVerifier(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := time.Now()

	h := newTestHandshake(store)
	setClock(h, &clock)

	verifier, err := h.BeginVerifier(ctx, nil)
	require.NoError(t, err)

	clock = clock.Add(2*time.Minute + time.Second)
	_, err = h.Complete(ctx, "google", "ext-1", model.Profile{}, verifier.Signature)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestHandshake_Complete_ConsumesVerifier(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := time.Now()

	h := newTestHandshake(store)
	setClock(h, &clock)

	verifier, err := h.BeginVerifier(ctx, nil)
	require.NoError(t, err)

	_, err = h.Complete(ctx, "google", "ext-1", model.Profile{}, verifier.Signature)
	require.NoError(t, err)

	_, err = h.Complete(ctx, "google", "ext-1", model.Profile{}, verifier.Signature)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestHandshake_Complete_LinksToSignedInUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := time.Now()

	h := newTestHandshake(store)
	setClock(h, &clock)

	user, err := store.CreateUser(ctx, model.User{ID: uuid.New(), CreatedAt: clock, UpdatedAt: clock})
	require.NoError(t, err)
	session, err := h.sessions.Create(ctx, user.ID)
	require.NoError(t, err)

	verifier, err := h.BeginVerifier(ctx, &session.ID)
	require.NoError(t, err)

	completion, err := h.Complete(ctx, "github", "ext-2", model.Profile{}, verifier.Signature)
	require.NoError(t, err)

	// The account hangs off the signed-in user, no second user appears.
	assert.Equal(t, user.ID, completion.Account.UserID)
}

func TestHandshake_ExchangeCode_ExpiredCode(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := time.Now()

	h := newTestHandshake(store)
	setClock(h, &clock)

	verifier, err := h.BeginVerifier(ctx, nil)
	require.NoError(t, err)
	completion, err := h.Complete(ctx, "google", "ext-1", model.Profile{}, verifier.Signature)
	require.NoError(t, err)

	clock = clock.Add(2*time.Minute + time.Second)
	_, _, err = h.ExchangeCode(ctx, completion.Account.ID, completion.Code)
	assert.ErrorIs(t, err, model.ErrExpiredVerificationCode)
}

func TestHandshake_ExchangeCode_SecondHandshakeReplacesCode(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := time.Now()

	h := newTestHandshake(store)
	setClock(h, &clock)

	begin := func() Completion {
		verifier, err := h.BeginVerifier(ctx, nil)
		require.NoError(t, err)
		completion, err := h.Complete(ctx, "google", "ext-1", model.Profile{}, verifier.Signature)
		require.NoError(t, err)
		return completion
	}

	first := begin()
	second := begin()
	require.Equal(t, first.Account.ID, second.Account.ID)

	// Only the newest code is live.
	if first.Code != second.Code {
		_, _, err := h.ExchangeCode(ctx, first.Account.ID, first.Code)
		assert.ErrorIs(t, err, model.ErrInvalidState)
	}
	_, _, err := h.ExchangeCode(ctx, second.Account.ID, second.Code)
	assert.NoError(t, err)
}

func TestHandshake_ExchangeCode_BruteForceGuard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := time.Now()

	h := newTestHandshake(store)
	setClock(h, &clock)

	verifier, err := h.BeginVerifier(ctx, nil)
	require.NoError(t, err)
	completion, err := h.Complete(ctx, "google", "ext-1", model.Profile{}, verifier.Signature)
	require.NoError(t, err)

	wrong := "00000000"
	if wrong == completion.Code {
		wrong = "00000001"
	}

	for i := 0; i < 5; i++ {
		_, _, err := h.ExchangeCode(ctx, completion.Account.ID, wrong)
		require.ErrorIs(t, err, model.ErrInvalidState)
	}

	// The budget is spent: even the correct code is refused now.
	_, _, err = h.ExchangeCode(ctx, completion.Account.ID, completion.Code)
	assert.ErrorIs(t, err, model.ErrTooManyFailedAttempts)

	// The code was burned, later exchanges see no live code at all.
	_, _, err = h.ExchangeCode(ctx, completion.Account.ID, completion.Code)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestHandshake_ExchangeCode_WrongThenRightWithinBudget(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := time.Now()

	h := newTestHandshake(store)
	setClock(h, &clock)

	verifier, err := h.BeginVerifier(ctx, nil)
	require.NoError(t, err)
	completion, err := h.Complete(ctx, "google", "ext-1", model.Profile{}, verifier.Signature)
	require.NoError(t, err)

	wrong := "00000000"
	if wrong == completion.Code {
		wrong = "00000001"
	}

	for i := 0; i < 3; i++ {
		_, _, err := h.ExchangeCode(ctx, completion.Account.ID, wrong)
		require.ErrorIs(t, err, model.ErrInvalidState)
	}

	_, _, err = h.ExchangeCode(ctx, completion.Account.ID, completion.Code)
	assert.NoError(t, err)
}

func TestHandshake_ExchangeCode_NoLiveCode(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	h := newTestHandshake(store)

	_, _, err := h.ExchangeCode(ctx, uuid.New(), "12345678")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}
