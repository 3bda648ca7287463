package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"interview-backend/internal/shared/requestid"
)

type stubRunner struct {
	calls   atomic.Int32
	release chan struct{}
	err     error

	mu    sync.Mutex
	reqID []string
}

func (s *stubRunner) RunCycle(ctx context.Context) (CycleResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.reqID = append(s.reqID, requestid.From(ctx))
	s.mu.Unlock()
	if s.release != nil {
		<-s.release
	}
	return CycleResult{OrphansFound: 2}, s.err
}

func TestTriggerRunNowRecordsLastRun(t *testing.T) {
	runner := &stubRunner{err: errors.New("retry scan: boom")}
	trigger := &Trigger{Runner: runner}

	_, ok := trigger.Last()
	require.False(t, ok)

	res, err := trigger.RunNow(context.Background(), "cli")
	require.Error(t, err)
	require.Equal(t, 2, res.OrphansFound)

	last, ok := trigger.Last()
	require.True(t, ok)
	require.Equal(t, "cli", last.Source)
	require.Equal(t, "retry scan: boom", last.Error)
}

func TestTriggerCoalescesBackgroundRuns(t *testing.T) {
	runner := &stubRunner{release: make(chan struct{})}
	trigger := &Trigger{Runner: runner}

	ctx, cancel := context.WithCancel(requestid.With(context.Background(), "req-bg"))
	require.True(t, trigger.RunInBackground(ctx, "api"))
	require.False(t, trigger.RunInBackground(ctx, "api"))
	cancel()

	close(runner.release)
	trigger.Wait()
	require.Equal(t, int32(1), runner.calls.Load())
	require.Equal(t, []string{"req-bg"}, runner.reqID)

	require.True(t, trigger.RunInBackground(context.Background(), "api"))
	trigger.Wait()
	require.Equal(t, int32(2), runner.calls.Load())

	last, ok := trigger.Last()
	require.True(t, ok)
	require.Equal(t, "api", last.Source)
	require.Empty(t, last.Error)
}

func TestTriggerEveryStopsOnCancel(t *testing.T) {
	runner := &stubRunner{}
	trigger := &Trigger{Runner: runner}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		trigger.Every(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Every did not stop after cancel")
	}

	last, ok := trigger.Last()
	require.True(t, ok)
	require.Equal(t, "schedule", last.Source)
	runner.mu.Lock()
	require.NotEmpty(t, runner.reqID[0])
	runner.mu.Unlock()
}

func TestTriggerEveryDisabledForZeroInterval(t *testing.T) {
	runner := &stubRunner{}
	trigger := &Trigger{Runner: runner}
	trigger.Every(context.Background(), 0)
	require.Zero(t, runner.calls.Load())
}
