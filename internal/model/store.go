package model

import "context"

// TokenStore is the single storage capability interface the services
// depend on. Implementations must make InTx atomic: either every write
// made inside fn is visible afterwards, or none is.
//
// The multi-step operations of the rotator and handshake (check
// FirstUsedAt, set it, insert a child; consume verifier, mint code) run
// entirely inside one InTx call so that concurrent attempts against the
// same token serialize instead of both observing "first use".
type TokenStore interface {
	UserStore
	AccountStore
	SessionStore
	RefreshTokenStore
	VerifierStore
	VerificationCodeStore

	// InTx runs fn against a transactional view of the store. A nil
	// return commits; any error rolls back and is returned unchanged.
	// Nested calls run in the enclosing transaction.
	InTx(ctx context.Context, fn func(TokenStore) error) error
}
