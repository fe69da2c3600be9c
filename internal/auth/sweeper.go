// AngelaMos | 2026
// sweeper.go

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/clock"
)

// KeyPruner drops signing keys whose grace window has elapsed.
type KeyPruner interface {
	Prune() int
}

type Sweeper struct {
	store    *Store
	keys     KeyPruner
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(
	store *Store,
	keys KeyPruner,
	clk clock.Clock,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		store:    store,
		keys:     keys,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is done. Failures are logged and the
// next tick retries.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "session sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()

	res, err := s.store.Sweep(ctx, s.clock.Now())
	if err != nil {
		return res, err
	}

	pruned := 0
	if s.keys != nil {
		pruned = s.keys.Prune()
	}

	s.logger.InfoContext(ctx, "session sweep complete",
		"expired_deleted", res.Expired,
		"revoked_deleted", res.Revoked,
		"keys_pruned", pruned,
		"duration", time.Since(start),
	)

	return res, nil
}
