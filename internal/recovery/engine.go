package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"interview-backend/internal/dispatch"
	"interview-backend/internal/interviews"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/requestid"
	"interview-backend/internal/shared/telemetry"
)

// Notifier delivers a best-effort text message to an interview owner.
type Notifier interface {
	Notify(ctx context.Context, ownerRef, text string) bool
}

// Dispatcher resubmits an interview's original message without waiting for the result.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request)
}

// Engine finds stalled and retry-eligible interviews and moves them through
// the state machine. It holds no state between cycles, so any number of
// cycles may run at once; conditional updates decide which one wins a unit.
type Engine struct {
	Repo       interviews.Repo
	Notifier   Notifier
	Dispatcher Dispatcher
	Config     Config
	Now        func() time.Time
}

// CycleResult summarizes one recovery cycle.
type CycleResult struct {
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	OrphansFound      int       `json:"orphans_found"`
	OrphansRecovered  int       `json:"orphans_recovered"`
	RetriesFound      int       `json:"retries_found"`
	RetriesDispatched int       `json:"retries_dispatched"`
	PermanentlyFailed int       `json:"permanently_failed"`
	Conflicts         int       `json:"conflicts"`
	Errors            int       `json:"errors"`
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(repo interviews.Repo, notifier Notifier, dispatcher Dispatcher, cfg Config) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("recovery engine requires a repo")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{Repo: repo, Notifier: notifier, Dispatcher: dispatcher, Config: cfg}, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// RunCycle runs the orphan scan to completion, then the retry scan.
// The cycle ignores cancellation of ctx. Failures of a single interview are
// logged and counted without stopping the sweep; the returned error reports
// scans that could not be queried at all.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	ctx = context.WithoutCancel(ctx)
	res := CycleResult{StartedAt: e.now()}
	telemetry.Info("recovery.cycle.started", map[string]any{
		"request_id": requestid.From(ctx),
	})

	orphanErr := e.scanOrphans(ctx, &res)
	retryErr := e.scanRetries(ctx, &res)
	err := errors.Join(orphanErr, retryErr)

	res.FinishedAt = e.now()
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	metrics.IncRecoveryCycle(outcome)
	metrics.ObserveRecoveryCycleSeconds(res.FinishedAt.Sub(res.StartedAt).Seconds())

	fields := map[string]any{
		"request_id":         requestid.From(ctx),
		"orphans_found":      res.OrphansFound,
		"orphans_recovered":  res.OrphansRecovered,
		"retries_found":      res.RetriesFound,
		"retries_dispatched": res.RetriesDispatched,
		"permanently_failed": res.PermanentlyFailed,
		"conflicts":          res.Conflicts,
		"errors":             res.Errors,
		"duration_ms":        float64(res.FinishedAt.Sub(res.StartedAt).Microseconds()) / 1000.0,
	}
	if err != nil {
		fields["error"] = err.Error()
		telemetry.Error("recovery.cycle.completed", fields)
		return res, err
	}
	telemetry.Info("recovery.cycle.completed", fields)
	return res, nil
}

func (e *Engine) scanOrphans(ctx context.Context, res *CycleResult) error {
	now := e.now()
	found, err := e.Repo.FindBefore(ctx, interviews.Filter{
		Statuses: interviews.ActiveStatuses,
		Field:    interviews.FieldStartedAt,
		Before:   now.Add(-e.Config.OrphanTimeout),
		Limit:    e.Config.ScanLimit,
	})
	if err != nil {
		res.Errors++
		telemetry.Error("recovery.orphan_scan.failed", map[string]any{
			"request_id": requestid.From(ctx),
			"error":      err.Error(),
		})
		return fmt.Errorf("orphan scan: %w", err)
	}
	res.OrphansFound = len(found)
	for _, interview := range found {
		e.isolate(ctx, interview, res, func() error {
			return e.recoverOrphan(ctx, interview, now, res)
		})
	}
	return nil
}

func (e *Engine) scanRetries(ctx context.Context, res *CycleResult) error {
	now := e.now()
	found, err := e.Repo.FindBefore(ctx, interviews.Filter{
		Statuses:    []interviews.Status{interviews.StatusFailed},
		Field:       interviews.FieldRetryClock,
		Before:      now.Add(-e.Config.RetryDelay),
		Unfinalized: true,
		Limit:       e.Config.ScanLimit,
	})
	if err != nil {
		res.Errors++
		telemetry.Error("recovery.retry_scan.failed", map[string]any{
			"request_id": requestid.From(ctx),
			"error":      err.Error(),
		})
		return fmt.Errorf("retry scan: %w", err)
	}
	res.RetriesFound = len(found)
	for _, interview := range found {
		e.isolate(ctx, interview, res, func() error {
			_, err := e.retryOne(ctx, interview, now, res)
			return err
		})
	}
	return nil
}

// isolate runs fn for one interview, containing errors and panics.
func (e *Engine) isolate(ctx context.Context, interview interviews.Interview, res *CycleResult, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			res.Errors++
			telemetry.Error("recovery.unit.panic", map[string]any{
				"request_id":   requestid.From(ctx),
				"interview_id": interview.ID,
				"error":        fmt.Sprint(rec),
			})
		}
	}()
	if err := fn(); err != nil {
		res.Errors++
		telemetry.Error("recovery.unit.failed", map[string]any{
			"request_id":   requestid.From(ctx),
			"interview_id": interview.ID,
			"status":       string(interview.Status),
			"error":        err.Error(),
		})
	}
}

func (e *Engine) recoverOrphan(ctx context.Context, interview interviews.Interview, now time.Time, res *CycleResult) error {
	t, err := interviews.Orphan(interview, e.Config.MaxRetryAttempts, now)
	if err != nil {
		return err
	}
	applied, err := e.apply(ctx, t, res)
	if err != nil || !applied {
		return err
	}
	if t.Permanent {
		res.PermanentlyFailed++
		metrics.IncPermanentFailure()
		e.logTransition(ctx, interview, t)
		e.notify(ctx, interview.OwnerRef, permanentFailureText(interview.ID, interview.RetryCount, e.Config.MaxRetryAttempts))
		return nil
	}
	res.OrphansRecovered++
	metrics.IncOrphanRecovered()
	e.logTransition(ctx, interview, t)
	e.notify(ctx, interview.OwnerRef, orphanRecoveredText(interview.ID, interview.RetryCount+1, e.Config.MaxRetryAttempts))
	return nil
}

// RetryOutcome reports what a retry step did with an interview.
type RetryOutcome string

const (
	OutcomeDispatched        RetryOutcome = "dispatched"
	OutcomePermanentlyFailed RetryOutcome = "permanently_failed"
	OutcomeConflict          RetryOutcome = "conflict"
)

// retryOne requeues a failed interview or finalizes it when its budget is spent.
func (e *Engine) retryOne(ctx context.Context, interview interviews.Interview, now time.Time, res *CycleResult) (RetryOutcome, error) {
	if interview.RetryCount >= e.Config.MaxRetryAttempts {
		t, err := interviews.Finalize(interview, now)
		if err != nil {
			return "", err
		}
		applied, err := e.apply(ctx, t, res)
		if err != nil {
			return "", err
		}
		if !applied {
			return OutcomeConflict, nil
		}
		res.PermanentlyFailed++
		metrics.IncPermanentFailure()
		e.logTransition(ctx, interview, t)
		e.notify(ctx, interview.OwnerRef, permanentFailureText(interview.ID, interview.RetryCount, e.Config.MaxRetryAttempts))
		return OutcomePermanentlyFailed, nil
	}

	t, err := interviews.Requeue(interview, e.Config.MaxRetryAttempts, now)
	if err != nil {
		return "", err
	}
	applied, err := e.apply(ctx, t, res)
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeConflict, nil
	}
	res.RetriesDispatched++
	metrics.IncRetryDispatched()
	e.logTransition(ctx, interview, t)
	if e.Dispatcher != nil {
		e.Dispatcher.Dispatch(ctx, dispatch.RequestFor(interview))
	}
	return OutcomeDispatched, nil
}

func (e *Engine) apply(ctx context.Context, t interviews.Transition, res *CycleResult) (bool, error) {
	applied, err := interviews.ApplyTransition(ctx, e.Repo, t)
	if err != nil {
		return false, fmt.Errorf("apply %s: %w", t.Label(), err)
	}
	if !applied {
		res.Conflicts++
		metrics.IncUpdateConflict(t.Label())
		telemetry.Debug("recovery.transition.conflict", map[string]any{
			"request_id":        requestid.From(ctx),
			"interview_id":      t.ID,
			"status_transition": t.Label(),
		})
	}
	return applied, nil
}

func (e *Engine) logTransition(ctx context.Context, interview interviews.Interview, t interviews.Transition) {
	fields := map[string]any{
		"request_id":        requestid.From(ctx),
		"interview_id":      interview.ID,
		"owner_ref":         interview.OwnerRef,
		"status_transition": t.Label(),
		"retry_count":       interview.RetryCount,
	}
	if t.Patch.RetryCount != nil {
		fields["retry_count"] = *t.Patch.RetryCount
	}
	if t.Permanent {
		telemetry.Warn("recovery.interview.permanently_failed", fields)
		return
	}
	telemetry.Info("recovery.interview.transitioned", fields)
}

func (e *Engine) notify(ctx context.Context, ownerRef, text string) {
	if e.Notifier == nil || ownerRef == "" {
		return
	}
	if !e.Notifier.Notify(ctx, ownerRef, text) {
		metrics.IncNotificationFailed()
		telemetry.Warn("recovery.notify.failed", map[string]any{
			"request_id": requestid.From(ctx),
			"owner_ref":  ownerRef,
		})
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orphanRecoveredText(id string, attempt, maxAttempts int) string {
	return fmt.Sprintf("🔄 Recovering interrupted processing...\nID: %s - Attempt %d/%d", shortID(id), attempt, maxAttempts)
}

func permanentFailureText(id string, attempts, maxAttempts int) string {
	return fmt.Sprintf("❌ Processing failed permanently\nID: %s\nAttempts: %d/%d\n\nContact support if needed.", shortID(id), attempts, maxAttempts)
}
