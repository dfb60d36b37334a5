package session

import (
	"context"
	"log/slog"
	"time"
)

// StaleStore is the subset of the record store the sweeper needs.
type StaleStore interface {
	ExpireStale(ctx context.Context, now time.Time, grace time.Duration) (int64, error)
}

// Sweeper periodically expires sessions stuck in_progress past their time
// limit. It covers the one case the per-session governor cannot: the
// candidate's process died and no finalization ever ran.
type Sweeper struct {
	store    StaleStore
	interval time.Duration
	grace    time.Duration
}

// NewSweeper creates a sweeper expiring sessions that overran their limit by
// more than grace, checking every interval.
func NewSweeper(s StaleStore, interval, grace time.Duration) *Sweeper {
	return &Sweeper{store: s, interval: interval, grace: grace}
}

// Run blocks until ctx is done, sweeping on each tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.ExpireStale(ctx, time.Now(), s.grace)
			if err != nil {
				slog.Warn("stale session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired stale sessions", "count", n)
			}
		}
	}
}
