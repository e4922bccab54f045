package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
)

// HandshakeConfig carries the sign-in handshake tunables.
type HandshakeConfig struct {
	// VerifierTTL bounds the gap between starting a provider sign-in
	// and the provider callback.
	VerifierTTL time.Duration
	// CodeTTL bounds the gap between the callback and the code
	// exchange on the original client.
	CodeTTL time.Duration
	// MaxCodeAttempts is how many wrong codes an account may present
	// before the live code is burned.
	MaxCodeAttempts int32
}

// Handshake runs the two-step provider sign-in: an opaque verifier
// carries state across the provider redirect, then a short numeric code
// carries the result back to the client that initiated the flow.
type Handshake struct {
	store    model.TokenStore
	sessions *Sessions
	rotator  *Rotator
	accounts *Accounts
	cfg      HandshakeConfig
	logger   *logger.Logger

	now func() time.Time
}

func NewHandshake(store model.TokenStore, sessions *Sessions, rotator *Rotator, accounts *Accounts, cfg HandshakeConfig, l *logger.Logger) *Handshake {
	return &Handshake{
		store:    store,
		sessions: sessions,
		rotator:  rotator,
		accounts: accounts,
		cfg:      cfg,
		logger:   l,
		now:      time.Now,
	}
}

// BeginVerifier opens a handshake. A non-nil sessionID pins the
// handshake to an existing signed-in user, which turns the completion
// into an account link instead of a fresh sign-in.
func (h *Handshake) BeginVerifier(ctx context.Context, sessionID *uuid.UUID) (model.Verifier, error) {
	now := h.now()

	signature, err := newSignature()
	if err != nil {
		return model.Verifier{}, fmt.Errorf("generate signature: %w", err)
	}

	verifier := model.Verifier{
		ID:        uuid.New(),
		SessionID: sessionID,
		Signature: signature,
		ExpiresAt: now.Add(h.cfg.VerifierTTL),
		CreatedAt: now,
	}

	if err := h.store.CreateVerifier(ctx, verifier); err != nil {
		return model.Verifier{}, fmt.Errorf("create verifier: %w", err)
	}

	h.logger.Debug("verifier created", "verifier_id", verifier.ID)

	return verifier, nil
}

// Completion is the outcome of the provider callback: the linked
// account plus the one-time code the original client must exchange.
type Completion struct {
	Account model.Account
	Code    string
}

// Complete consumes the verifier after a successful provider
// authentication, links the external identity and arms a one-time code
// for the account. An unknown or expired signature is ErrInvalidState.
func (h *Handshake) Complete(ctx context.Context, provider, externalAccountID string, profile model.Profile, signature string) (Completion, error) {
	now := h.now()

	var completion Completion

	run := func(tx model.TokenStore) error {
		verifier, err := tx.GetVerifierBySignature(ctx, signature)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.ErrInvalidState
			}
			return fmt.Errorf("get verifier: %w", err)
		}
		if !verifier.ExpiresAt.After(now) {
			return model.ErrInvalidState
		}

		account, err := h.accounts.upsertIn(ctx, tx, provider, externalAccountID, profile, verifier.SessionID, now)
		if err != nil {
			return err
		}

		if err := tx.DeleteVerifier(ctx, verifier.ID); err != nil {
			return fmt.Errorf("delete verifier: %w", err)
		}

		code, err := newCode()
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}

		err = tx.UpsertVerificationCode(ctx, model.VerificationCode{
			AccountID:  account.ID,
			Provider:   provider,
			CodeHash:   hashCode(code),
			VerifierID: verifier.ID,
			ExpiresAt:  now.Add(h.cfg.CodeTTL),
			CreatedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("upsert verification code: %w", err)
		}

		completion = Completion{Account: account, Code: code}
		return nil
	}

	err := h.store.InTx(ctx, run)
	if errors.Is(err, model.ErrDuplicate) {
		// Concurrent first sign-in created the link between our lookup
		// and insert. The retry finds it.
		err = h.store.InTx(ctx, run)
	}
	if err != nil {
		return Completion{}, err
	}

	h.logger.Debug("handshake completed", "account_id", completion.Account.ID, "provider", provider)

	return completion, nil
}

// ExchangeCode trades a correct one-time code for a session with a root
// refresh token. Wrong codes burn attempts, and the attempt bump
// commits even though the call fails; past the attempt budget the code
// is deleted and every further exchange fails the same way.
func (h *Handshake) ExchangeCode(ctx context.Context, accountID uuid.UUID, code string) (model.Session, model.RefreshToken, error) {
	now := h.now()

	var (
		session model.Session
		token   model.RefreshToken
		denied  error
	)

	err := h.store.InTx(ctx, func(tx model.TokenStore) error {
		vc, err := tx.GetVerificationCodeByAccount(ctx, accountID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.ErrInvalidState
			}
			return fmt.Errorf("get verification code: %w", err)
		}

		// Attempt exhaustion wins over everything else, including a
		// correct code and expiry.
		if vc.Attempts >= h.cfg.MaxCodeAttempts {
			if err := tx.DeleteVerificationCode(ctx, accountID); err != nil {
				return fmt.Errorf("delete verification code: %w", err)
			}
			denied = model.ErrTooManyFailedAttempts
			return nil
		}

		if !vc.ExpiresAt.After(now) {
			return model.ErrExpiredVerificationCode
		}

		if subtle.ConstantTimeCompare(vc.CodeHash, hashCode(code)) != 1 {
			if _, err := tx.IncrementVerificationCodeAttempts(ctx, accountID); err != nil {
				return fmt.Errorf("increment code attempts: %w", err)
			}
			denied = model.ErrInvalidState
			return nil
		}

		if err := tx.DeleteVerificationCode(ctx, accountID); err != nil {
			return fmt.Errorf("delete verification code: %w", err)
		}

		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}

		session, err = h.sessions.createIn(ctx, tx, account.UserID, now)
		if err != nil {
			return err
		}
		token, err = h.rotator.mint(ctx, tx, session.ID, nil, now)
		return err
	})
	if err != nil {
		return model.Session{}, model.RefreshToken{}, err
	}
	if denied != nil {
		h.logger.Debug("code exchange denied", "account_id", accountID, "reason", denied)
		return model.Session{}, model.RefreshToken{}, denied
	}

	return session, token, nil
}

func newSignature() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n), nil
}

func hashCode(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}
