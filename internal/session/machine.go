package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

// commitAttempts is how many times the guarded terminal commit is retried
// before falling back to the direct write path. A session that ran but never
// reached completed is the worst outcome, so the commit is the one step that
// must not be given up on.
const commitAttempts = 3

const commitBackoff = 250 * time.Millisecond

// TransitionStore is the subset of the record store the state machine needs.
type TransitionStore interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	Begin(ctx context.Context, id string, now time.Time) (*store.Session, error)
	Finalize(ctx context.Context, id string, now time.Time, reason store.EndReason) (*store.Session, bool, error)
	ForceComplete(ctx context.Context, id string, now time.Time, reason store.EndReason) error
}

// Machine drives the session status lifecycle. All status mutations in the
// orchestrator go through Begin and Finalize; both are safe against
// duplicate and racing callers.
type Machine struct {
	store TransitionStore
	now   func() time.Time
}

// NewMachine creates a state machine over the given store.
func NewMachine(s TransitionStore) *Machine {
	return &Machine{store: s, now: time.Now}
}

// Begin moves pending → in_progress, stamping started_at exactly once.
// Returns store.ErrInvalidTransition if the session already started; callers
// treat that as "already started", not as a fatal error.
func (m *Machine) Begin(ctx context.Context, id string) (*store.Session, error) {
	sess, err := m.store.Begin(ctx, id, m.now())
	if err != nil {
		return nil, err
	}
	slog.Info("session started", "session_id", id, "job_role", sess.JobRole, "time_limit", sess.TimeLimit)
	return sess, nil
}

// Finalize moves in_progress → completed. Redundant calls are no-ops that
// return the already committed record with committed=false, so only one of
// several racing triggers (user end, expiry, abandonment) owns the terminal
// side effects. Transient commit failures are retried and finally routed
// through the direct fallback write path.
func (m *Machine) Finalize(ctx context.Context, id string, cause store.EndReason) (*store.Session, bool, error) {
	var lastErr error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		sess, committed, err := m.store.Finalize(ctx, id, m.now(), cause)
		if err == nil {
			if committed {
				slog.Info("session finalized", "session_id", id, "cause", cause)
			}
			return sess, committed, nil
		}
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
		lastErr = err
		metrics.FinalizeCommitRetries.Inc()
		slog.Warn("finalize commit failed, retrying", "session_id", id, "attempt", attempt+1, "error", err)
		select {
		case <-time.After(commitBackoff << attempt):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	slog.Error("finalize commit exhausted retries, using fallback write", "session_id", id, "error", lastErr)
	if err := m.store.ForceComplete(ctx, id, m.now(), cause); err != nil {
		return nil, false, err
	}
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}
