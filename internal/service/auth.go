package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
)

// handleDelimiter joins the token and session IDs into the opaque
// refresh handle handed to clients. UUIDs never contain a dot, so the
// split is unambiguous.
const handleDelimiter = "."

// Auth is the external surface of the credential subsystem. It composes
// the session, rotation, linking and handshake services and translates
// between wire-level handles and internal IDs.
type Auth struct {
	store     model.TokenStore
	sessions  *Sessions
	rotator   *Rotator
	accounts  *Accounts
	handshake *Handshake
	tokens    model.TokenManager
	logger    *logger.Logger
}

func NewAuth(store model.TokenStore, sessions *Sessions, rotator *Rotator, accounts *Accounts, handshake *Handshake, tokens model.TokenManager, l *logger.Logger) *Auth {
	return &Auth{
		store:     store,
		sessions:  sessions,
		rotator:   rotator,
		accounts:  accounts,
		handshake: handshake,
		tokens:    tokens,
		logger:    l,
	}
}

// Credentials is what a successful sign-in or refresh hands back.
type Credentials struct {
	Session      model.Session
	AccessToken  string
	RefreshToken string
}

func (a *Auth) credentials(session model.Session, token model.RefreshToken) (Credentials, error) {
	access, err := a.tokens.GenerateAccessToken(session.UserID, session.ID)
	if err != nil {
		return Credentials{}, fmt.Errorf("generate access token: %w", err)
	}

	return Credentials{
		Session:      session,
		AccessToken:  access,
		RefreshToken: encodeHandle(token),
	}, nil
}

// SignInWithCredential signs in an identity the caller has already
// verified out of band, for example a password check or a trusted
// first-party client.
func (a *Auth) SignInWithCredential(ctx context.Context, provider, externalAccountID string, profile model.Profile) (Credentials, error) {
	account, err := a.accounts.Upsert(ctx, provider, externalAccountID, profile, nil)
	if err != nil {
		return Credentials{}, err
	}

	var (
		session model.Session
		token   model.RefreshToken
	)
	err = a.store.InTx(ctx, func(tx model.TokenStore) error {
		now := a.sessions.now()
		session, err = a.sessions.createIn(ctx, tx, account.UserID, now)
		if err != nil {
			return err
		}
		token, err = a.rotator.mint(ctx, tx, session.ID, nil, now)
		return err
	})
	if err != nil {
		return Credentials{}, err
	}

	a.logger.Info("signed in", "user_id", account.UserID, "provider", provider)

	return a.credentials(session, token)
}

// BeginProviderSignIn opens a provider handshake and returns the
// verifier whose signature the client threads through the redirect.
func (a *Auth) BeginProviderSignIn(ctx context.Context, provider string) (model.Verifier, error) {
	verifier, err := a.handshake.BeginVerifier(ctx, nil)
	if err != nil {
		return model.Verifier{}, err
	}

	a.logger.Debug("provider sign-in started", "provider", provider, "verifier_id", verifier.ID)

	return verifier, nil
}

// CompleteProviderSignIn handles the provider callback: it consumes the
// verifier, links the account and arms the one-time code.
func (a *Auth) CompleteProviderSignIn(ctx context.Context, provider, externalAccountID string, profile model.Profile, signature string) (Completion, error) {
	return a.handshake.Complete(ctx, provider, externalAccountID, profile, signature)
}

// ExchangeCode trades the one-time code for full credentials.
func (a *Auth) ExchangeCode(ctx context.Context, accountID uuid.UUID, code string) (Credentials, error) {
	session, token, err := a.handshake.ExchangeCode(ctx, accountID, code)
	if err != nil {
		return Credentials{}, err
	}

	a.logger.Info("signed in", "user_id", session.UserID, "session_id", session.ID)

	return a.credentials(session, token)
}

// Refresh rotates the refresh handle and mints a new access token.
func (a *Auth) Refresh(ctx context.Context, handle string) (Credentials, error) {
	tokenID, sessionID, err := parseHandle(handle)
	if err != nil {
		return Credentials{}, err
	}

	rotation, err := a.rotator.Rotate(ctx, tokenID, sessionID)
	if err != nil {
		return Credentials{}, err
	}

	return a.credentials(rotation.Session, rotation.Token)
}

// SignOut destroys the session and with it every refresh token the
// session owns. Signing out twice is not an error.
func (a *Auth) SignOut(ctx context.Context, sessionID uuid.UUID) error {
	return a.sessions.Destroy(ctx, sessionID)
}

// InvalidateAllSessions signs the user out everywhere.
func (a *Auth) InvalidateAllSessions(ctx context.Context, userID uuid.UUID) error {
	return a.sessions.DestroyAllForUser(ctx, userID)
}

func encodeHandle(token model.RefreshToken) string {
	return token.ID.String() + handleDelimiter + token.SessionID.String()
}

func parseHandle(handle string) (tokenID, sessionID uuid.UUID, err error) {
	left, right, ok := strings.Cut(handle, handleDelimiter)
	if !ok {
		return uuid.Nil, uuid.Nil, model.ErrMalformedToken
	}
	tokenID, err = uuid.Parse(left)
	if err != nil {
		return uuid.Nil, uuid.Nil, model.ErrMalformedToken
	}
	sessionID, err = uuid.Parse(right)
	if err != nil {
		return uuid.Nil, uuid.Nil, model.ErrMalformedToken
	}
	return tokenID, sessionID, nil
}
