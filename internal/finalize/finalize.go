// Package finalize runs the terminal sequence that converts an in-progress
// session into a durably completed, scored record. The sequence is
// triggered by user end, expiry or unrecoverable disconnect, and those
// triggers race; the pipeline guarantees it runs once.
package finalize

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/notify"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

// drainTimeout caps how long finalization waits on in-flight transcript
// writes; stragglers past the cap are abandoned as accepted data loss.
const drainTimeout = 5 * time.Second

// captureTimeout caps the best-effort recording stop + upload.
const captureTimeout = 30 * time.Second

// sideEffectTimeout caps the fire-and-forget scoring and notification.
const sideEffectTimeout = 2 * time.Minute

// Stopper halts the timer governor.
type Stopper interface {
	Stop()
}

// Drainer is the transcript write-barrier.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Capturer stops the capture pipeline and uploads the recording.
type Capturer interface {
	Stop(ctx context.Context) (ref string, err error)
}

// Committer is the must-succeed terminal commit on the state machine.
type Committer interface {
	Finalize(ctx context.Context, id string, cause store.EndReason) (*store.Session, bool, error)
}

// Scorer generates score and summary from the durable transcript.
type Scorer interface {
	Evaluate(ctx context.Context, sessionID, jobRole string) error
}

// Pipeline finalizes one session. All triggers funnel into Run; only the
// first runs the sequence, and later or concurrent callers wait for it and
// receive the same committed record.
type Pipeline struct {
	sessionID string
	governor  Stopper
	recorder  Drainer
	capture   Capturer
	machine   Committer
	scorer    Scorer
	notifier  notify.Notifier

	once sync.Once
	done chan struct{}
	sess *store.Session
	err  error
}

// New creates a finalization pipeline for one session. scorer and notifier
// may be nil; governor, recorder and capture may be nil when the session
// never reached the running phase.
func New(sessionID string, governor Stopper, recorder Drainer, capture Capturer, machine Committer, scorer Scorer, notifier notify.Notifier) *Pipeline {
	return &Pipeline{
		sessionID: sessionID,
		governor:  governor,
		recorder:  recorder,
		capture:   capture,
		machine:   machine,
		scorer:    scorer,
		notifier:  notifier,
		done:      make(chan struct{}),
	}
}

// Run executes the terminal sequence for the given cause. Duplicate and
// racing invocations converge on the first run's committed record: exactly
// one completed_at is written and the scoring/notification side effects
// fire at most once.
func (p *Pipeline) Run(ctx context.Context, cause store.EndReason) (*store.Session, error) {
	p.once.Do(func() {
		defer close(p.done)
		p.sess, p.err = p.run(cause)
	})
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.sess, p.err
}

func (p *Pipeline) run(cause store.EndReason) (*store.Session, error) {
	slog.Info("finalizing session", "session_id", p.sessionID, "cause", cause)

	if p.governor != nil {
		p.governor.Stop()
	}

	// The write-barrier gets its own deadline: teardown cancelling ctx must
	// not also abandon writes that would otherwise land in time.
	if p.recorder != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := p.recorder.Drain(drainCtx); err != nil {
			slog.Warn("transcript drain cut short", "session_id", p.sessionID, "error", err)
		}
		cancel()
	}

	if p.capture != nil {
		capCtx, cancel := context.WithTimeout(context.Background(), captureTimeout)
		if _, err := p.capture.Stop(capCtx); err != nil {
			// Stop absorbs upload failures itself; this is unexpected.
			slog.Warn("capture stop failed", "session_id", p.sessionID, "error", err)
		}
		cancel()
	}

	// The commit must survive the trigger's own teardown, so it does not
	// run on the caller's context.
	commitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sess, committed, err := p.machine.Finalize(commitCtx, p.sessionID, cause)
	cancel()
	if err != nil {
		return nil, err
	}

	if !committed {
		// Another trigger already finalized; no second round of side effects.
		return sess, nil
	}

	metrics.FinalizationsTotal.WithLabelValues(string(cause)).Inc()
	if sess.StartedAt != nil && sess.CompletedAt != nil {
		metrics.InterviewDuration.Observe(sess.CompletedAt.Sub(*sess.StartedAt).Seconds())
	}

	p.fireSideEffects(sess)
	return sess, nil
}

// fireSideEffects requests scoring and the completion notification in the
// background. Both are best-effort: failures are logged as soft warnings,
// never retried here, and never touch the committed terminal status.
func (p *Pipeline) fireSideEffects(sess *store.Session) {
	if p.scorer != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			defer cancel()
			if err := p.scorer.Evaluate(ctx, sess.ID, sess.JobRole); err != nil {
				slog.Warn("scoring failed", "session_id", sess.ID, "error", err)
			}
		}()
	}
	if p.notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			defer cancel()
			if err := p.notifier.Completed(ctx, sess); err != nil {
				slog.Warn("completion notification failed", "session_id", sess.ID, "error", err)
			}
		}()
	}
}
