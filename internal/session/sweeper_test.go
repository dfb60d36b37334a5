package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStaleStore struct {
	sweeps atomic.Int32
	grace  time.Duration
}

func (f *fakeStaleStore) ExpireStale(ctx context.Context, now time.Time, grace time.Duration) (int64, error) {
	f.grace = grace
	f.sweeps.Add(1)
	return 2, nil
}

func TestSweeperSweepsUntilCancelled(t *testing.T) {
	fs := &fakeStaleStore{}
	sw := NewSweeper(fs, 5*time.Millisecond, 5*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()

	require.Eventually(t, func() bool { return fs.sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
	require.Equal(t, 5*time.Minute, fs.grace)
}
