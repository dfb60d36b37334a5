package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
)

// MaxReconnectAttempts bounds one outage's automatic reconnect budget.
// Exhaustion is surfaced as a choice for the candidate, not a hard failure;
// a manual retry starts a fresh budget.
const MaxReconnectAttempts = 3

const reconnectBackoff = time.Second

// ErrReconnectExhausted is returned when the automatic budget ran out.
var ErrReconnectExhausted = errors.New("agent: reconnect attempts exhausted")

// Reconnector recovers a link after an unintentional disconnect. It never
// replays recorded transcript; it only re-establishes the live channel and
// re-sends the one-shot context briefing.
//
// Recover can be triggered from two places at once (the link's disconnect
// event and the candidate's manual retry); mu serializes them so the
// attempt budget is consistent and dials never overlap.
type Reconnector struct {
	link *Link

	mu       sync.Mutex
	attempts int
}

// NewReconnector creates a reconnector for one link.
func NewReconnector(link *Link) *Reconnector {
	return &Reconnector{link: link}
}

// Attempts reports how many attempts the current outage has consumed.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Recover runs bounded reconnect attempts until one succeeds, the budget is
// exhausted, or ctx is done. On success the stored context is re-sent and
// the attempt counter resets to zero. Concurrent calls run one at a time; a
// trigger that arrives while a recovery is in flight waits its turn and
// returns immediately if that recovery already restored the link.
func (r *Reconnector) Recover(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.link.State() == StateConnected {
		return nil
	}
	r.link.setState(StateReconnecting, true)

	for r.attempts < MaxReconnectAttempts {
		r.attempts++
		metrics.AgentReconnectAttempts.Inc()
		slog.Info("agent reconnect attempt", "attempt", r.attempts, "max", MaxReconnectAttempts)

		if err := r.link.Connect(ctx); err == nil {
			if ctxErr := r.link.resendContext(); ctxErr != nil {
				slog.Warn("context re-send after reconnect failed", "error", ctxErr)
			}
			r.attempts = 0
			return nil
		}

		if r.attempts >= MaxReconnectAttempts {
			break
		}
		select {
		case <-time.After(reconnectBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.AgentReconnectExhausted.Inc()
	r.attempts = 0
	return ErrReconnectExhausted
}
