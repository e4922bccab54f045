package model

import "errors"

// ErrNotFound is returned by stores when no row matches a lookup.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by stores when an insert violates a uniqueness
// constraint. The account linker relies on it to resolve concurrent upserts.
var ErrDuplicate = errors.New("duplicate row")

// Credential failure taxonomy. All of these are recoverable by the caller;
// the API layer collapses them into one generic response so that the
// distinction never reaches an attacker.
var (
	ErrMalformedToken          = errors.New("malformed refresh token handle")
	ErrInvalidRefreshToken     = errors.New("invalid refresh token")
	ErrExpiredRefreshToken     = errors.New("refresh token expired")
	ErrExpiredSession          = errors.New("session expired")
	ErrReuseDetected           = errors.New("refresh token reuse detected")
	ErrInvalidState            = errors.New("invalid sign-in state")
	ErrExpiredVerificationCode = errors.New("verification code expired")
	ErrTooManyFailedAttempts   = errors.New("too many failed code attempts")
)
