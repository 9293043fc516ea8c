package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeAttemptPruner struct {
	calls int
	err   error
}

func (f *fakeAttemptPruner) DeleteExpired(ctx context.Context) (int64, error) {
	f.calls++
	return 2, f.err
}

type fakeChallengeSweeper struct {
	expireCalls int
	deleteCalls int
}

func (f *fakeChallengeSweeper) ExpirePending(ctx context.Context) (int64, error) {
	f.expireCalls++
	return 1, nil
}

func (f *fakeChallengeSweeper) DeleteResolved(ctx context.Context, olderThan time.Time) (int64, error) {
	f.deleteCalls++
	return 3, nil
}

type fakeSessionPruner struct {
	calls int
}

func (f *fakeSessionPruner) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	f.calls++
	return 4, nil
}

func TestSweep(t *testing.T) {
	attempts := &fakeAttemptPruner{}
	challenges := &fakeChallengeSweeper{}
	sessions := &fakeSessionPruner{}
	cleaner := NewCleaner(attempts, challenges, sessions, time.Hour, 30*24*time.Hour,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	cleaner.Sweep(context.Background())

	assert.Equal(t, 1, attempts.calls)
	assert.Equal(t, 1, challenges.expireCalls)
	assert.Equal(t, 1, challenges.deleteCalls)
	assert.Equal(t, 1, sessions.calls)
}

func TestSweep_ContinuesPastFailures(t *testing.T) {
	attempts := &fakeAttemptPruner{err: errors.New("db down")}
	challenges := &fakeChallengeSweeper{}
	sessions := &fakeSessionPruner{}
	cleaner := NewCleaner(attempts, challenges, sessions, time.Hour, 30*24*time.Hour,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	cleaner.Sweep(context.Background())

	// A failing pruner does not stop the rest of the pass
	assert.Equal(t, 1, challenges.expireCalls)
	assert.Equal(t, 1, sessions.calls)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	attempts := &fakeAttemptPruner{}
	cleaner := NewCleaner(attempts, &fakeChallengeSweeper{}, &fakeSessionPruner{}, 10*time.Millisecond, time.Hour,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleaner.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop after context cancellation")
	}

	// Initial sweep plus at least one tick
	assert.GreaterOrEqual(t, attempts.calls, 2)
}
