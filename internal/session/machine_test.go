package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

// fakeStore is an in-memory TransitionStore and LinkStore that mirrors the
// guarded-transition semantics of the real store.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*store.Session
	links    map[string]string

	finalizeErrs int // transient errors to inject before Finalize succeeds
	forceCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*store.Session),
		links:    make(map[string]string),
	}
}

func (f *fakeStore) add(id string, status store.Status, limit time.Duration) *store.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := &store.Session{ID: id, Status: status, JobRole: "Backend Engineer", TimeLimit: limit, CreatedAt: time.Now()}
	if status != store.StatusPending {
		now := time.Now()
		sess.StartedAt = &now
	}
	f.sessions[id] = sess
	return sess
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeStore) Begin(ctx context.Context, id string, now time.Time) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sess.Status != store.StatusPending {
		return nil, store.ErrInvalidTransition
	}
	sess.Status = store.StatusInProgress
	sess.StartedAt = &now
	cp := *sess
	return &cp, nil
}

func (f *fakeStore) Finalize(ctx context.Context, id string, now time.Time, reason store.EndReason) (*store.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErrs > 0 {
		f.finalizeErrs--
		return nil, false, errors.New("connection reset")
	}
	sess, ok := f.sessions[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if sess.Status.Terminal() {
		cp := *sess
		return &cp, false, nil
	}
	if sess.Status != store.StatusInProgress {
		return nil, false, store.ErrInvalidTransition
	}
	sess.Status = store.StatusCompleted
	sess.CompletedAt = &now
	sess.EndReason = reason
	cp := *sess
	return &cp, true, nil
}

func (f *fakeStore) ForceComplete(ctx context.Context, id string, now time.Time, reason store.EndReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceCalls++
	sess, ok := f.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	sess.Status = store.StatusCompleted
	if sess.CompletedAt == nil {
		sess.CompletedAt = &now
	}
	if sess.EndReason == "" {
		sess.EndReason = reason
	}
	return nil
}

func (f *fakeStore) GetAccessLink(ctx context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.links[sessionID]
	if !ok {
		return "", store.ErrNotFound
	}
	return identity, nil
}

func (f *fakeStore) CreateAccessLink(ctx context.Context, identity, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.links[sessionID]; !exists {
		f.links[sessionID] = identity
	}
	return nil
}

func TestBeginStampsStartedAtOnce(t *testing.T) {
	fs := newFakeStore()
	fs.add("s1", store.StatusPending, 30*time.Minute)
	m := NewMachine(fs)

	sess, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, sess.Status)
	require.NotNil(t, sess.StartedAt)

	_, err = m.Begin(context.Background(), "s1")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	// started_at untouched by the rejected second begin
	again, err := fs.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, sess.StartedAt.Unix(), again.StartedAt.Unix())
}

func TestBeginUnknownSession(t *testing.T) {
	m := NewMachine(newFakeStore())
	_, err := m.Begin(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	fs.add("s1", store.StatusInProgress, 30*time.Minute)
	m := NewMachine(fs)

	first, committed, err := m.Finalize(context.Background(), "s1", store.EndUserEnded)
	require.NoError(t, err)
	assert.True(t, committed)
	require.NotNil(t, first.CompletedAt)
	assert.Equal(t, store.EndUserEnded, first.EndReason)

	second, committed, err := m.Finalize(context.Background(), "s1", store.EndExpired)
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
	assert.Equal(t, store.EndUserEnded, second.EndReason)
}

func TestFinalizeConcurrentCommitsOnce(t *testing.T) {
	fs := newFakeStore()
	fs.add("s1", store.StatusInProgress, 30*time.Minute)
	m := NewMachine(fs)

	var wg sync.WaitGroup
	var mu sync.Mutex
	commits := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, committed, err := m.Finalize(context.Background(), "s1", store.EndUserEnded)
			require.NoError(t, err)
			if committed {
				mu.Lock()
				commits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, commits)
}

func TestFinalizeRetriesTransientFailure(t *testing.T) {
	fs := newFakeStore()
	fs.add("s1", store.StatusInProgress, 30*time.Minute)
	fs.finalizeErrs = 1
	m := NewMachine(fs)

	sess, committed, err := m.Finalize(context.Background(), "s1", store.EndUserEnded)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, store.StatusCompleted, sess.Status)
	assert.Zero(t, fs.forceCalls)
}

func TestFinalizeFallsBackAfterExhaustedRetries(t *testing.T) {
	fs := newFakeStore()
	fs.add("s1", store.StatusInProgress, 30*time.Minute)
	fs.finalizeErrs = commitAttempts
	m := NewMachine(fs)

	sess, committed, err := m.Finalize(context.Background(), "s1", store.EndAbandoned)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, 1, fs.forceCalls)
	assert.Equal(t, store.StatusCompleted, sess.Status)
	require.NotNil(t, sess.CompletedAt)
}

func TestFinalizeFromPendingIsInvalid(t *testing.T) {
	fs := newFakeStore()
	fs.add("s1", store.StatusPending, 30*time.Minute)
	m := NewMachine(fs)

	_, _, err := m.Finalize(context.Background(), "s1", store.EndUserEnded)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}
