package service

import (
	"context"
	"time"

	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
)

// Sweeper periodically removes expired sessions, refresh tokens,
// verifiers and verification codes. Expired rows are already inert, the
// sweep only keeps the tables from growing without bound.
type Sweeper struct {
	store    model.TokenStore
	interval time.Duration
	logger   *logger.Logger

	now func() time.Time
}

func NewSweeper(store model.TokenStore, interval time.Duration, l *logger.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   l.With("component", "sweeper"),
		now:      time.Now,
	}
}

// Run sweeps on every tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce removes everything already expired. Each kind is swept
// independently so one failing delete does not block the others.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.now()

	sweeps := []struct {
		kind string
		fn   func(context.Context, time.Time) (int64, error)
	}{
		{"sessions", s.store.DeleteExpiredSessions},
		{"refresh_tokens", s.store.DeleteExpiredRefreshTokens},
		{"verifiers", s.store.DeleteExpiredVerifiers},
		{"verification_codes", s.store.DeleteExpiredVerificationCodes},
	}

	for _, sw := range sweeps {
		n, err := sw.fn(ctx, now)
		if err != nil {
			s.logger.Error("sweep failed", "kind", sw.kind, "error", err)
			continue
		}
		if n > 0 {
			sweepDeletedTotal.WithLabelValues(sw.kind).Add(float64(n))
			s.logger.Debug("swept expired records", "kind", sw.kind, "count", n)
		}
	}
}
