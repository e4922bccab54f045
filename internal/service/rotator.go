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

// RotatorConfig carries the refresh token tunables.
type RotatorConfig struct {
	// TokenTTL is the lifetime of each minted refresh token.
	TokenTTL time.Duration
	// ReuseWindow is the grace period after first use during which a
	// repeated presentation of the same token counts as a client retry
	// rather than theft.
	ReuseWindow time.Duration
}

// Rotator mints and rotates refresh tokens. Tokens form a tree per
// session through their parent link; exactly one unused leaf exists per
// healthy session, and a replay outside the grace window revokes the
// whole subtree of the replayed token.
type Rotator struct {
	store  model.TokenStore
	cfg    RotatorConfig
	logger *logger.Logger

	now func() time.Time
}

func NewRotator(store model.TokenStore, cfg RotatorConfig, l *logger.Logger) *Rotator {
	return &Rotator{
		store:  store,
		cfg:    cfg,
		logger: l,
		now:    time.Now,
	}
}

// Rotation is the outcome of a successful rotation: the still-valid
// session and the fresh token the client must use next time.
type Rotation struct {
	Session model.Session
	Token   model.RefreshToken
}

// Create mints the root token for a new session.
func (r *Rotator) Create(ctx context.Context, sessionID uuid.UUID) (model.RefreshToken, error) {
	return r.mint(ctx, r.store, sessionID, nil, r.now())
}

func (r *Rotator) mint(ctx context.Context, st model.TokenStore, sessionID uuid.UUID, parentID *uuid.UUID, now time.Time) (model.RefreshToken, error) {
	token := model.RefreshToken{
		ID:        uuid.New(),
		SessionID: sessionID,
		ParentID:  parentID,
		ExpiresAt: now.Add(r.cfg.TokenTTL),
		CreatedAt: now,
	}

	if err := st.CreateRefreshToken(ctx, token); err != nil {
		return model.RefreshToken{}, fmt.Errorf("create refresh token: %w", err)
	}

	return token, nil
}

// LoadActive returns the newest unused token of the session, or
// model.ErrNotFound when every token has been consumed.
func (r *Rotator) LoadActive(ctx context.Context, sessionID uuid.UUID) (model.RefreshToken, error) {
	return r.store.GetActiveRefreshToken(ctx, sessionID)
}

// Rotate consumes the presented token and mints its successor.
//
// A token already consumed within the grace window is treated as a
// retried delivery: the caller gets the surviving child instead of an
// error. Outside the window the presentation is a replay; the token's
// entire subtree is revoked and ErrReuseDetected is returned. The
// revocation commits even though the call fails.
func (r *Rotator) Rotate(ctx context.Context, tokenID, sessionID uuid.UUID) (Rotation, error) {
	now := r.now()

	var result Rotation
	var reuse error

	err := r.store.InTx(ctx, func(tx model.TokenStore) error {
		token, err := tx.GetRefreshTokenForUpdate(ctx, tokenID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.ErrInvalidRefreshToken
			}
			return fmt.Errorf("get refresh token: %w", err)
		}

		// A token presented against a foreign session is as good as
		// no token at all.
		if token.SessionID != sessionID {
			return model.ErrInvalidRefreshToken
		}

		if !token.ExpiresAt.After(now) {
			return model.ErrExpiredRefreshToken
		}

		session, err := tx.GetSession(ctx, token.SessionID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.ErrInvalidRefreshToken
			}
			return fmt.Errorf("get session: %w", err)
		}
		if !session.Valid(now) {
			return model.ErrExpiredSession
		}

		if token.FirstUsedAt == nil {
			if err := tx.MarkRefreshTokenUsed(ctx, token.ID, now); err != nil {
				return fmt.Errorf("mark refresh token used: %w", err)
			}
			child, err := r.mint(ctx, tx, token.SessionID, &token.ID, now)
			if err != nil {
				return err
			}
			result = Rotation{Session: session, Token: child}
			return nil
		}

		if now.Sub(*token.FirstUsedAt) < r.cfg.ReuseWindow {
			child, err := r.retryChild(ctx, tx, token, now)
			if err != nil {
				return err
			}
			result = Rotation{Session: session, Token: child}
			return nil
		}

		// Replay outside the window. Revoke the subtree and commit the
		// revocation while the rotation itself fails.
		if err := r.revokeSubtree(ctx, tx, token, now); err != nil {
			return err
		}
		reuse = model.ErrReuseDetected
		return nil
	})
	if err != nil {
		return Rotation{}, err
	}
	if reuse != nil {
		reuseDetectedTotal.Inc()
		r.logger.Error("refresh token reuse detected, subtree revoked",
			"token_id", tokenID, "session_id", sessionID)
		return Rotation{}, reuse
	}

	return result, nil
}

// retryChild resolves a benign double delivery of the same token. The
// original rotation already minted a child, so hand that child back
// instead of minting a sibling and forking the tree. The child is only
// minted anew when the original one has been consumed or has expired.
func (r *Rotator) retryChild(ctx context.Context, tx model.TokenStore, token model.RefreshToken, now time.Time) (model.RefreshToken, error) {
	children, err := tx.GetRefreshTokensByParents(ctx, token.SessionID, []uuid.UUID{token.ID})
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("get child tokens: %w", err)
	}

	var survivor *model.RefreshToken
	for i := range children {
		c := children[i]
		if c.Used() || !c.ExpiresAt.After(now) {
			continue
		}
		if survivor == nil || c.CreatedAt.After(survivor.CreatedAt) {
			survivor = &c
		}
	}
	if survivor != nil {
		return *survivor, nil
	}

	return r.mint(ctx, tx, token.SessionID, &token.ID, now)
}

// revokeSubtree walks the descendants of the replayed token breadth
// first and forces every still-usable one into the stale-used state, so
// no branch of the stolen lineage can be rotated again.
func (r *Rotator) revokeSubtree(ctx context.Context, tx model.TokenStore, root model.RefreshToken, now time.Time) error {
	revoked := []model.RefreshToken{root}

	frontier := []uuid.UUID{root.ID}
	for len(frontier) > 0 {
		batch, err := tx.GetRefreshTokensByParents(ctx, root.SessionID, frontier)
		if err != nil {
			return fmt.Errorf("get child tokens: %w", err)
		}

		frontier = frontier[:0]
		for _, t := range batch {
			revoked = append(revoked, t)
			frontier = append(frontier, t.ID)
		}
	}

	// Backdating first use to the window's edge makes the token fail
	// the grace-period check from this instant on.
	stale := now.Add(-r.cfg.ReuseWindow)

	ids := make([]uuid.UUID, 0, len(revoked))
	for _, t := range revoked {
		if t.FirstUsedAt == nil || now.Sub(*t.FirstUsedAt) < r.cfg.ReuseWindow {
			ids = append(ids, t.ID)
		}
	}

	if err := tx.ForceRefreshTokensUsed(ctx, ids, stale); err != nil {
		return fmt.Errorf("force refresh tokens used: %w", err)
	}

	r.logger.Debug("revoked refresh token subtree",
		"session_id", root.SessionID, "root_id", root.ID, "count", len(ids))

	return nil
}
