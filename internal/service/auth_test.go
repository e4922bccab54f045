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
	"github.com/keyfold/keyfold/internal/token"
)

func newTestAuth(store model.TokenStore) *Auth {
	log := testutil.MakeNoopLogger()
	sessions := NewSessions(store, 720*time.Hour, log)
	rotator := newTestRotator(store)
	accounts := NewAccounts(store, log)
	handshake := NewHandshake(store, sessions, rotator, accounts, HandshakeConfig{
		VerifierTTL:     2 * time.Minute,
		CodeTTL:         2 * time.Minute,
		MaxCodeAttempts: 5,
	}, log)
	return NewAuth(store, sessions, rotator, accounts, handshake, token.NewJWT("test-secret"), log)
}

func TestAuth_SignInWithCredential(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := newTestAuth(store)

	creds, err := a.SignInWithCredential(ctx, "password", "alice", model.Profile{Name: "alice", Email: "a@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, creds.AccessToken)
	assert.NotEmpty(t, creds.RefreshToken)

	userID, sessionID, err := a.tokens.ParseAccessToken(creds.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, creds.Session.UserID, userID)
	assert.Equal(t, creds.Session.ID, sessionID)
}

func TestAuth_SignInWithCredential_SameIdentitySameUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := newTestAuth(store)

	first, err := a.SignInWithCredential(ctx, "password", "alice", model.Profile{})
	require.NoError(t, err)
	second, err := a.SignInWithCredential(ctx, "password", "alice", model.Profile{})
	require.NoError(t, err)

	assert.Equal(t, first.Session.UserID, second.Session.UserID)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
}

func TestAuth_ProviderFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := newTestAuth(store)

	verifier, err := a.BeginProviderSignIn(ctx, "google")
	require.NoError(t, err)

	completion, err := a.CompleteProviderSignIn(ctx, "google", "ext-1", model.Profile{Name: "n"}, verifier.Signature)
	require.NoError(t, err)

	creds, err := a.ExchangeCode(ctx, completion.Account.ID, completion.Code)
	require.NoError(t, err)
	assert.NotEmpty(t, creds.AccessToken)

	// The refresh handle rotates.
	next, err := a.Refresh(ctx, creds.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, creds.Session.ID, next.Session.ID)
	assert.NotEqual(t, creds.RefreshToken, next.RefreshToken)
}

func TestAuth_Refresh_MalformedHandle(t *testing.T) {
	ctx := context.Background()

	a := newTestAuth(memory.NewStore())

	tests := []struct {
		name   string
		handle string
	}{
		{name: "empty", handle: ""},
		{name: "no delimiter", handle: uuid.NewString()},
		{name: "bad token id", handle: "nope." + uuid.NewString()},
		{name: "bad session id", handle: uuid.NewString() + ".nope"},
		{name: "extra segment", handle: uuid.NewString() + "." + uuid.NewString() + "." + uuid.NewString()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Refresh(ctx, tt.handle)
			assert.ErrorIs(t, err, model.ErrMalformedToken)
		})
	}
}

func TestAuth_Refresh_UnknownHandle(t *testing.T) {
	ctx := context.Background()

	a := newTestAuth(memory.NewStore())

	_, err := a.Refresh(ctx, uuid.NewString()+"."+uuid.NewString())
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestAuth_SignOut_KillsRefresh(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := newTestAuth(store)

	creds, err := a.SignInWithCredential(ctx, "password", "alice", model.Profile{})
	require.NoError(t, err)

	require.NoError(t, a.SignOut(ctx, creds.Session.ID))

	_, err = a.Refresh(ctx, creds.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestAuth_InvalidateAllSessions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a := newTestAuth(store)

	first, err := a.SignInWithCredential(ctx, "password", "alice", model.Profile{})
	require.NoError(t, err)
	second, err := a.SignInWithCredential(ctx, "password", "alice", model.Profile{})
	require.NoError(t, err)

	require.NoError(t, a.InvalidateAllSessions(ctx, first.Session.UserID))

	_, err = a.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
	_, err = a.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestParseHandle_Roundtrip(t *testing.T) {
	tok := model.RefreshToken{ID: uuid.New(), SessionID: uuid.New()}

	tokenID, sessionID, err := parseHandle(encodeHandle(tok))
	require.NoError(t, err)
	assert.Equal(t, tok.ID, tokenID)
	assert.Equal(t, tok.SessionID, sessionID)
}
