package background

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAttemptPruner struct {
	calls  atomic.Int32
	cutoff atomic.Value
}

func (f *fakeAttemptPruner) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls.Add(1)
	f.cutoff.Store(cutoff)
	return 3, nil
}

type fakeCountPruner struct {
	calls atomic.Int32
}

func (f *fakeCountPruner) PruneExpired() int {
	f.calls.Add(1)
	return 1
}

func (f *fakeCountPruner) PruneStale(maxAge time.Duration) int {
	f.calls.Add(1)
	return 2
}

func TestCleanupManager_RunsImmediatelyAndStops(t *testing.T) {
	attempts := &fakeAttemptPruner{}
	challenges := &fakeCountPruner{}
	windows := &fakeCountPruner{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	cm := NewCleanupManager(attempts, challenges, windows, 30*24*time.Hour, logger, time.Hour)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return attempts.calls.Load() >= 1 && challenges.calls.Load() >= 1 && windows.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cm.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup manager did not stop")
	}

	cutoff := attempts.cutoff.Load().(time.Time)
	assert.WithinDuration(t, time.Now().Add(-30*24*time.Hour), cutoff, time.Minute)
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	attempts := &fakeAttemptPruner{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	cm := NewCleanupManager(attempts, &fakeCountPruner{}, &fakeCountPruner{}, time.Hour, logger, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup manager did not stop on context cancel")
	}
}
