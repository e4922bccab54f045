package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keyfold/keyfold/internal/model"
	"github.com/keyfold/keyfold/internal/repository/memory"
	"github.com/keyfold/keyfold/internal/testutil"
)

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now()

	s := NewSweeper(store, time.Minute, testutil.MakeNoopLogger())
	clock := now
	s.now = func() time.Time { return clock }

	user, err := store.CreateUser(ctx, model.User{ID: uuid.New(), CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	live := model.Session{ID: uuid.New(), UserID: user.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	dead := model.Session{ID: uuid.New(), UserID: user.ID, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	require.NoError(t, store.CreateSession(ctx, live))
	require.NoError(t, store.CreateSession(ctx, dead))

	require.NoError(t, store.CreateVerifier(ctx, model.Verifier{
		ID: uuid.New(), Signature: "sig", ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}))
	require.NoError(t, store.UpsertVerificationCode(ctx, model.VerificationCode{
		AccountID: uuid.New(), Provider: "google", CodeHash: []byte{1}, VerifierID: uuid.New(),
		ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}))

	clock = now.Add(10 * time.Minute)
	s.SweepOnce(ctx)

	_, err = store.GetSession(ctx, live.ID)
	assert.NoError(t, err)
	_, err = store.GetSession(ctx, dead.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = store.GetVerifierBySignature(ctx, "sig")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSweeper_Run_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.NewStore()
	s := NewSweeper(store, time.Millisecond, testutil.MakeNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
