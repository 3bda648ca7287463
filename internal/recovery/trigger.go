package recovery

import (
	"context"
	"sync"
	"time"

	"interview-backend/internal/shared/requestid"
	"interview-backend/internal/shared/telemetry"
)

// CycleRunner runs one recovery cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// Trigger is the on-demand entry point for cycles. Synchronous runs always
// execute; background requests are coalesced while one is still in flight.
type Trigger struct {
	Runner CycleRunner

	mu         sync.Mutex
	background bool
	last       *LastRun
	wg         sync.WaitGroup
}

// LastRun records the most recent finished cycle.
type LastRun struct {
	Result CycleResult `json:"result"`
	Error  string      `json:"error,omitempty"`
	Source string      `json:"source"`
}

// RunNow runs a cycle and waits for it.
func (t *Trigger) RunNow(ctx context.Context, source string) (CycleResult, error) {
	res, err := t.Runner.RunCycle(ctx)
	t.record(res, err, source)
	return res, err
}

// RunInBackground starts a cycle and returns immediately. It reports false
// when a background cycle is already running.
func (t *Trigger) RunInBackground(ctx context.Context, source string) bool {
	t.mu.Lock()
	if t.background {
		t.mu.Unlock()
		return false
	}
	t.background = true
	t.mu.Unlock()

	ctx = requestid.Detach(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			t.background = false
			t.mu.Unlock()
		}()
		t.RunNow(ctx, source)
	}()
	return true
}

// Wait blocks until background cycles started so far have finished.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

// Last returns the most recent finished cycle, if any.
func (t *Trigger) Last() (LastRun, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return LastRun{}, false
	}
	return *t.last, true
}

func (t *Trigger) record(res CycleResult, err error, source string) {
	run := LastRun{Result: res, Source: source}
	if err != nil {
		run.Error = err.Error()
	}
	t.mu.Lock()
	t.last = &run
	t.mu.Unlock()
}

// Every runs a cycle on each tick until ctx is done. It is the in-process
// stand-in for an external cron when the API host is configured with an interval.
func (t *Trigger) Every(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	telemetry.Info("recovery.scheduler.started", map[string]any{"interval": interval.String()})
	for {
		select {
		case <-ctx.Done():
			telemetry.Info("recovery.scheduler.stopped", nil)
			return
		case <-ticker.C:
			t.RunNow(requestid.With(ctx, requestid.New()), "schedule")
		}
	}
}
