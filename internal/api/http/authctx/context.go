package authctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/model"
)

type contextKey int

const (
	userIDKey contextKey = iota
	sessionIDKey
)

// Manager stores the authenticated identity in request contexts.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

var _ model.ContextManager = (*Manager)(nil)

// SetIdentityToContext returns a child context carrying the identity.
func (m *Manager) SetIdentityToContext(ctx context.Context, userID, sessionID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetIdentityFromContext extracts the identity set by the authenticate
// middleware. ok is false on unauthenticated contexts.
func (m *Manager) GetIdentityFromContext(ctx context.Context) (userID, sessionID uuid.UUID, ok bool) {
	userID, uok := ctx.Value(userIDKey).(uuid.UUID)
	sessionID, sok := ctx.Value(sessionIDKey).(uuid.UUID)
	if !uok || !sok {
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}
