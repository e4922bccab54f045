package model

import "github.com/google/uuid"

// TokenManager generates and validates the short-lived access tokens that
// accompany a session. Refresh custody is handled by the rotator; this
// interface covers only the bearer credential handed to API callers.
type TokenManager interface {
	GenerateAccessToken(userID, sessionID uuid.UUID) (string, error)
	ParseAccessToken(token string) (userID, sessionID uuid.UUID, err error)
}
