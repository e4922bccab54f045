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

// Sessions manages server-side session lifetime. A session owns every
// refresh token minted for it, so destroying a session revokes the
// whole token tree in one step.
type Sessions struct {
	store  model.TokenStore
	ttl    time.Duration
	logger *logger.Logger

	now func() time.Time
}

func NewSessions(store model.TokenStore, ttl time.Duration, l *logger.Logger) *Sessions {
	return &Sessions{
		store:  store,
		ttl:    ttl,
		logger: l,
		now:    time.Now,
	}
}

func (s *Sessions) Create(ctx context.Context, userID uuid.UUID) (model.Session, error) {
	return s.createIn(ctx, s.store, userID, s.now())
}

// createIn creates the session on the given store so callers can run it
// inside an enclosing transaction.
func (s *Sessions) createIn(ctx context.Context, st model.TokenStore, userID uuid.UUID, now time.Time) (model.Session, error) {
	session := model.Session{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := st.CreateSession(ctx, session); err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("session created", "session_id", session.ID, "user_id", userID)

	return session, nil
}

// Validate reports whether the session exists and has not expired.
// Expired or missing sessions both surface as ErrExpiredSession.
func (s *Sessions) Validate(ctx context.Context, sessionID uuid.UUID) (model.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, model.ErrExpiredSession
		}
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}

	if !session.Valid(s.now()) {
		return model.Session{}, model.ErrExpiredSession
	}

	return session, nil
}

// Destroy removes the session and, through store-level ownership,
// every refresh token belonging to it.
func (s *Sessions) Destroy(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete session: %w", err)
	}

	s.logger.Debug("session destroyed", "session_id", sessionID)

	return nil
}

// DestroyAllForUser removes every session of the user. Used for
// "sign out everywhere" after a credential change or account compromise.
func (s *Sessions) DestroyAllForUser(ctx context.Context, userID uuid.UUID) error {
	n, err := s.store.DeleteSessionsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete sessions by user: %w", err)
	}

	s.logger.Info("sessions invalidated", "user_id", userID, "count", n)

	return nil
}
