package model

import (
	"context"

	"github.com/google/uuid"
)

// ContextManager threads the authenticated identity through request
// contexts. Explicit rather than a process-wide ambient value so every
// operation receives its caller as a parameter.
type ContextManager interface {
	SetIdentityToContext(ctx context.Context, userID, sessionID uuid.UUID) context.Context
	GetIdentityFromContext(ctx context.Context) (userID, sessionID uuid.UUID, ok bool)
}
