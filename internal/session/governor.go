package session

import (
	"context"
	"time"
)

// Remaining derives the time left in a session from wall clock, start time
// and limit. Never negative.
func Remaining(now, startedAt time.Time, limit time.Duration) time.Duration {
	left := limit - now.Sub(startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Governor watches one in_progress session's time budget on a fixed tick and
// raises exactly one expiry signal when the budget reaches zero. Its
// goroutine is scoped to the session context, so tearing the session down
// never leaks the tick.
type Governor struct {
	expired chan struct{}
	ticks   chan time.Duration
	stop    chan struct{}
}

// StartGovernor begins ticking for a session started at startedAt with the
// given limit. Expired fires at most once; Ticks carries the remaining time
// for UI updates and is dropped, never blocked on, when nobody listens.
func StartGovernor(ctx context.Context, startedAt time.Time, limit, tick time.Duration, now func() time.Time) *Governor {
	if now == nil {
		now = time.Now
	}
	g := &Governor{
		expired: make(chan struct{}),
		ticks:   make(chan time.Duration, 1),
		stop:    make(chan struct{}),
	}
	go g.run(ctx, startedAt, limit, tick, now)
	return g
}

// Expired is closed when the session's time budget reaches zero.
func (g *Governor) Expired() <-chan struct{} { return g.expired }

// Ticks delivers the latest remaining time, best-effort.
func (g *Governor) Ticks() <-chan time.Duration { return g.ticks }

// Stop halts the governor without raising expiry. Safe to call more than
// once and after expiry.
func (g *Governor) Stop() {
	select {
	case <-g.stop:
	default:
		close(g.stop)
	}
}

func (g *Governor) run(ctx context.Context, startedAt time.Time, limit, tick time.Duration, now func() time.Time) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stop:
			return
		case <-ticker.C:
			left := Remaining(now(), startedAt, limit)
			select {
			case g.ticks <- left:
			default:
			}
			if left == 0 {
				close(g.expired)
				return
			}
		}
	}
}
