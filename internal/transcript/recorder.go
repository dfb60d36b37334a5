// Package transcript merges the voice channel and the text fallback into one
// ordered, durably persisted message log per session.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

// MaxContentLen bounds one message's content in bytes.
const MaxContentLen = 4000

// writeTimeout bounds each durable write. Writes are never cancelled by
// session teardown; they finish in the background and Drain awaits them.
const writeTimeout = 10 * time.Second

var (
	// ErrEmptyContent rejects blank messages before any write is attempted.
	ErrEmptyContent = errors.New("transcript: empty content")
	// ErrContentTooLong rejects over-limit messages; content is never
	// silently truncated.
	ErrContentTooLong = fmt.Errorf("transcript: content exceeds %d bytes", MaxContentLen)
	// ErrUnsafeContent rejects content that is not valid UTF-8 or carries
	// control characters.
	ErrUnsafeContent = errors.New("transcript: content is not safe text")
)

// WriteStore is the durable sink for transcript entries.
type WriteStore interface {
	AppendMessage(ctx context.Context, m store.Message) error
}

// Recorder is the per-session transcript recorder. It keeps an in-memory
// log in arrival order for display and issues one asynchronous durable
// write per message. Pending writes are tracked so Drain can act as a
// write-barrier before finalization reads the transcript.
//
// A Recorder is constructed fresh per session and holds no process-wide
// state; sessions stay independent.
type Recorder struct {
	store     WriteStore
	sessionID string
	now       func() time.Time

	mu      sync.Mutex
	log     []store.Message
	pending map[string]chan struct{}
}

// NewRecorder creates a recorder for one session.
func NewRecorder(s WriteStore, sessionID string) *Recorder {
	return &Recorder{
		store:     s,
		sessionID: sessionID,
		now:       time.Now,
		pending:   make(map[string]chan struct{}),
	}
}

// Validate checks content against the recorder's bounds without recording.
func Validate(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len(content) > MaxContentLen {
		return ErrContentTooLong
	}
	if !utf8.ValidString(content) {
		return ErrUnsafeContent
	}
	for _, r := range content {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return ErrUnsafeContent
		}
	}
	return nil
}

// Record validates content, appends it to the display log and issues the
// durable write. The write runs in the background; a failed write is logged
// and dropped, leaving the message visible locally but absent from the
// durable record.
func (r *Recorder) Record(role store.Role, content string) (store.Message, error) {
	if err := Validate(content); err != nil {
		return store.Message{}, err
	}

	msg := store.Message{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: r.now(),
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.log = append(r.log, msg)
	r.pending[msg.ID] = done
	r.mu.Unlock()

	metrics.TranscriptWrites.Inc()
	go r.write(msg, done)

	return msg, nil
}

func (r *Recorder) write(msg store.Message, done chan struct{}) {
	defer close(done)
	defer func() {
		r.mu.Lock()
		delete(r.pending, msg.ID)
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.AppendMessage(ctx, msg); err != nil {
		metrics.TranscriptWriteFailures.Inc()
		slog.Warn("transcript write dropped",
			"session_id", msg.SessionID, "message_id", msg.ID, "role", msg.Role, "error", err)
	}
}

// Drain is the write-barrier: it returns once every write issued before the
// call has resolved, or once ctx expires and the stragglers are abandoned.
// Writes issued after Drain starts are not waited on.
func (r *Recorder) Drain(ctx context.Context) error {
	r.mu.Lock()
	waiting := make([]chan struct{}, 0, len(r.pending))
	for _, done := range r.pending {
		waiting = append(waiting, done)
	}
	r.mu.Unlock()

	for _, done := range waiting {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("transcript drain: %w", ctx.Err())
		}
	}
	return nil
}

// Log returns a copy of the display log in arrival order.
func (r *Recorder) Log() []store.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.Message, len(r.log))
	copy(out, r.log)
	return out
}

// Pending reports how many durable writes are still in flight.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
