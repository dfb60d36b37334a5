package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

// slowStore delays each append so Drain has real in-flight writes to wait on.
type slowStore struct {
	delay time.Duration
	fail  bool

	mu       sync.Mutex
	messages []store.Message
}

func (s *slowStore) AppendMessage(ctx context.Context, m store.Message) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fail {
		return errors.New("connection refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *slowStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("hello"))
	assert.NoError(t, Validate("multi\nline\twith tabs"))
	assert.ErrorIs(t, Validate(""), ErrEmptyContent)
	assert.ErrorIs(t, Validate("   \n\t "), ErrEmptyContent)
	assert.ErrorIs(t, Validate(strings.Repeat("a", MaxContentLen+1)), ErrContentTooLong)
	assert.ErrorIs(t, Validate("bad\x00byte"), ErrUnsafeContent)
	assert.ErrorIs(t, Validate(string([]byte{0xff, 0xfe})), ErrUnsafeContent)
}

func TestRecordKeepsArrivalOrder(t *testing.T) {
	r := NewRecorder(&slowStore{}, "s1")

	_, err := r.Record(store.RoleAgent, "Tell me about yourself.")
	require.NoError(t, err)
	_, err = r.Record(store.RoleCandidate, "I build distributed systems.")
	require.NoError(t, err)

	log := r.Log()
	require.Len(t, log, 2)
	assert.Equal(t, store.RoleAgent, log[0].Role)
	assert.Equal(t, store.RoleCandidate, log[1].Role)
	assert.Equal(t, "s1", log[0].SessionID)
	assert.NotEmpty(t, log[0].ID)
}

func TestRecordRejectsInvalidContentWithoutWrite(t *testing.T) {
	st := &slowStore{}
	r := NewRecorder(st, "s1")

	_, err := r.Record(store.RoleCandidate, "  ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, r.Log())
	assert.Zero(t, st.count())
}

func TestDrainIsWriteBarrier(t *testing.T) {
	st := &slowStore{delay: 20 * time.Millisecond}
	r := NewRecorder(st, "s1")

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Record(store.RoleCandidate, fmt.Sprintf("answer %d", i))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))

	assert.Equal(t, n, st.count())
	assert.Zero(t, r.Pending())
}

func TestDrainRespectsContext(t *testing.T) {
	st := &slowStore{delay: time.Second}
	r := NewRecorder(st, "s1")
	_, err := r.Record(store.RoleCandidate, "slow one")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = r.Drain(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailedWriteStaysInLocalLog(t *testing.T) {
	st := &slowStore{fail: true}
	r := NewRecorder(st, "s1")

	_, err := r.Record(store.RoleCandidate, "lost to the database")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))

	// visible locally, absent durably
	assert.Len(t, r.Log(), 1)
	assert.Zero(t, st.count())
	assert.Zero(t, r.Pending())
}
