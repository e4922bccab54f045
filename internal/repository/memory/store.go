// Package memory implements model.TokenStore with in-process maps. It
// backs unit tests and single-process development; postgres is the
// production implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/model"
)

var _ model.TokenStore = (*Store)(nil)

type providerKey struct {
	provider          string
	externalAccountID string
}

// state holds all tables. Transactions clone it and swap the clone in on
// commit, giving the same all-or-nothing semantics as the SQL backend.
type state struct {
	users     map[uuid.UUID]model.User
	accounts  map[uuid.UUID]model.Account
	byProv    map[providerKey]uuid.UUID
	sessions  map[uuid.UUID]model.Session
	tokens    map[uuid.UUID]model.RefreshToken
	tokenSeq  map[uuid.UUID]uint64
	verifiers map[uuid.UUID]model.Verifier
	bySig     map[string]uuid.UUID
	codes     map[uuid.UUID]model.VerificationCode
	seq       uint64
}

func newState() *state {
	return &state{
		users:     make(map[uuid.UUID]model.User),
		accounts:  make(map[uuid.UUID]model.Account),
		byProv:    make(map[providerKey]uuid.UUID),
		sessions:  make(map[uuid.UUID]model.Session),
		tokens:    make(map[uuid.UUID]model.RefreshToken),
		tokenSeq:  make(map[uuid.UUID]uint64),
		verifiers: make(map[uuid.UUID]model.Verifier),
		bySig:     make(map[string]uuid.UUID),
		codes:     make(map[uuid.UUID]model.VerificationCode),
	}
}

func (st *state) clone() *state {
	c := newState()
	c.seq = st.seq
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.byProv {
		c.byProv[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.tokens {
		c.tokens[k] = v
	}
	for k, v := range st.tokenSeq {
		c.tokenSeq[k] = v
	}
	for k, v := range st.verifiers {
		c.verifiers[k] = v
	}
	for k, v := range st.bySig {
		c.bySig[k] = v
	}
	for k, v := range st.codes {
		c.codes[k] = v
	}
	return c
}

// Store is an in-memory model.TokenStore. Safe for concurrent use.
type Store struct {
	mu sync.Mutex
	st *state
	tx bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTx clones the state, runs fn against the clone, and swaps it in on
// success. An error from fn discards the clone, so no partial writes
// survive. Nested calls reuse the enclosing transaction.
func (s *Store) InTx(_ context.Context, fn func(model.TokenStore) error) error {
	if s.tx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := s.st.clone()
	if err := fn(&Store{st: clone, tx: true}); err != nil {
		return err
	}
	s.st = clone
	return nil
}

func (s *Store) CreateUser(_ context.Context, user model.User) (model.User, error) {
	defer s.lock()()
	s.st.users[user.ID] = user
	return user, nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (model.User, error) {
	defer s.lock()()
	user, ok := s.st.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return user, nil
}

func (s *Store) CreateAccount(_ context.Context, account model.Account) (model.Account, error) {
	defer s.lock()()
	key := providerKey{account.Provider, account.ExternalAccountID}
	if _, ok := s.st.byProv[key]; ok {
		return model.Account{}, model.ErrDuplicate
	}
	s.st.accounts[account.ID] = account
	s.st.byProv[key] = account.ID
	return account, nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (model.Account, error) {
	defer s.lock()()
	account, ok := s.st.accounts[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return account, nil
}

func (s *Store) GetAccountByProvider(_ context.Context, provider, externalAccountID string) (model.Account, error) {
	defer s.lock()()
	id, ok := s.st.byProv[providerKey{provider, externalAccountID}]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return s.st.accounts[id], nil
}

func (s *Store) CreateSession(_ context.Context, session model.Session) error {
	defer s.lock()()
	s.st.sessions[session.ID] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, id uuid.UUID) (model.Session, error) {
	defer s.lock()()
	session, ok := s.st.sessions[id]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	return session, nil
}

func (s *Store) DeleteSession(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	s.st.deleteSession(id)
	return nil
}

func (s *Store) DeleteSessionsByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	defer s.lock()()
	var n int64
	for id, session := range s.st.sessions {
		if session.UserID == userID {
			s.st.deleteSession(id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for id, session := range s.st.sessions {
		if session.ExpiresAt.Before(now) {
			s.st.deleteSession(id)
			n++
		}
	}
	return n, nil
}

// deleteSession cascades to the session's refresh tokens, mirroring the
// SQL foreign-key behavior.
func (st *state) deleteSession(id uuid.UUID) {
	delete(st.sessions, id)
	for tokenID, token := range st.tokens {
		if token.SessionID == id {
			delete(st.tokens, tokenID)
			delete(st.tokenSeq, tokenID)
		}
	}
}

func (s *Store) CreateRefreshToken(_ context.Context, token model.RefreshToken) error {
	defer s.lock()()
	s.st.seq++
	s.st.tokens[token.ID] = token
	s.st.tokenSeq[token.ID] = s.st.seq
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, id uuid.UUID) (model.RefreshToken, error) {
	defer s.lock()()
	token, ok := s.st.tokens[id]
	if !ok {
		return model.RefreshToken{}, model.ErrNotFound
	}
	return token, nil
}

// GetRefreshTokenForUpdate has plain get semantics here: the store-wide
// transaction lock already serializes rotations.
func (s *Store) GetRefreshTokenForUpdate(ctx context.Context, id uuid.UUID) (model.RefreshToken, error) {
	return s.GetRefreshToken(ctx, id)
}

func (s *Store) GetActiveRefreshToken(_ context.Context, sessionID uuid.UUID) (model.RefreshToken, error) {
	defer s.lock()()
	var (
		best    model.RefreshToken
		bestSeq uint64
		found   bool
	)
	for id, token := range s.st.tokens {
		if token.SessionID != sessionID || token.FirstUsedAt != nil {
			continue
		}
		if seq := s.st.tokenSeq[id]; !found || seq > bestSeq {
			best, bestSeq, found = token, seq, true
		}
	}
	if !found {
		return model.RefreshToken{}, model.ErrNotFound
	}
	return best, nil
}

func (s *Store) GetRefreshTokensByParents(_ context.Context, sessionID uuid.UUID, parentIDs []uuid.UUID) ([]model.RefreshToken, error) {
	defer s.lock()()
	parents := make(map[uuid.UUID]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}
	var tokens []model.RefreshToken
	for _, token := range s.st.tokens {
		if token.SessionID != sessionID || token.ParentID == nil {
			continue
		}
		if _, ok := parents[*token.ParentID]; ok {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (s *Store) MarkRefreshTokenUsed(_ context.Context, id uuid.UUID, firstUsedAt time.Time) error {
	defer s.lock()()
	token, ok := s.st.tokens[id]
	if !ok || token.FirstUsedAt != nil {
		return model.ErrNotFound
	}
	token.FirstUsedAt = &firstUsedAt
	s.st.tokens[id] = token
	return nil
}

func (s *Store) ForceRefreshTokensUsed(_ context.Context, ids []uuid.UUID, firstUsedAt time.Time) error {
	defer s.lock()()
	for _, id := range ids {
		token, ok := s.st.tokens[id]
		if !ok {
			continue
		}
		t := firstUsedAt
		token.FirstUsedAt = &t
		s.st.tokens[id] = token
	}
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for id, token := range s.st.tokens {
		if token.ExpiresAt.Before(now) {
			delete(s.st.tokens, id)
			delete(s.st.tokenSeq, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateVerifier(_ context.Context, verifier model.Verifier) error {
	defer s.lock()()
	s.st.verifiers[verifier.ID] = verifier
	s.st.bySig[verifier.Signature] = verifier.ID
	return nil
}

func (s *Store) GetVerifierBySignature(_ context.Context, signature string) (model.Verifier, error) {
	defer s.lock()()
	id, ok := s.st.bySig[signature]
	if !ok {
		return model.Verifier{}, model.ErrNotFound
	}
	return s.st.verifiers[id], nil
}

func (s *Store) DeleteVerifier(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	if verifier, ok := s.st.verifiers[id]; ok {
		delete(s.st.bySig, verifier.Signature)
		delete(s.st.verifiers, id)
	}
	return nil
}

func (s *Store) DeleteExpiredVerifiers(_ context.Context, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for id, verifier := range s.st.verifiers {
		if verifier.ExpiresAt.Before(now) {
			delete(s.st.bySig, verifier.Signature)
			delete(s.st.verifiers, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertVerificationCode(_ context.Context, code model.VerificationCode) error {
	defer s.lock()()
	s.st.codes[code.AccountID] = code
	return nil
}

func (s *Store) GetVerificationCodeByAccount(_ context.Context, accountID uuid.UUID) (model.VerificationCode, error) {
	defer s.lock()()
	code, ok := s.st.codes[accountID]
	if !ok {
		return model.VerificationCode{}, model.ErrNotFound
	}
	return code, nil
}

func (s *Store) DeleteVerificationCode(_ context.Context, accountID uuid.UUID) error {
	defer s.lock()()
	delete(s.st.codes, accountID)
	return nil
}

func (s *Store) IncrementVerificationCodeAttempts(_ context.Context, accountID uuid.UUID) (int32, error) {
	defer s.lock()()
	code, ok := s.st.codes[accountID]
	if !ok {
		return 0, model.ErrNotFound
	}
	code.Attempts++
	s.st.codes[accountID] = code
	return code.Attempts, nil
}

func (s *Store) DeleteExpiredVerificationCodes(_ context.Context, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for id, code := range s.st.codes {
		if code.ExpiresAt.Before(now) {
			delete(s.st.codes, id)
			n++
		}
	}
	return n, nil
}
