package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"interview-backend/internal/interviews"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/requestid"
	"interview-backend/internal/shared/telemetry"
)

// Report is a read-only snapshot of interview counts.
type Report struct {
	ByStatus    map[interviews.Status]int `json:"by_status"`
	Orphaned    int                       `json:"orphaned"`
	RetryReady  int                       `json:"retry_ready"`
	Total       int                       `json:"total"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Policy      PolicyView                `json:"policy"`
}

// PolicyView renders Config with human-friendly units.
type PolicyView struct {
	OrphanTimeoutMinutes float64 `json:"orphan_timeout_minutes"`
	RetryDelayMinutes    float64 `json:"retry_delay_minutes"`
	MaxRetryAttempts     int     `json:"max_retry_attempts"`
	CleanupFloorDays     int     `json:"cleanup_floor_days"`
}

func (e *Engine) orphanFilter(now time.Time) interviews.Filter {
	return interviews.Filter{
		Statuses: interviews.ActiveStatuses,
		Field:    interviews.FieldStartedAt,
		Before:   now.Add(-e.Config.OrphanTimeout),
	}
}

func (e *Engine) retryReadyFilter(now time.Time) interviews.Filter {
	return interviews.Filter{
		Statuses:        []interviews.Status{interviews.StatusFailed},
		Field:           interviews.FieldRetryClock,
		Before:          now.Add(-e.Config.RetryDelay),
		RetryCountBelow: e.Config.MaxRetryAttempts,
		Unfinalized:     true,
	}
}

// Status aggregates counts without mutating anything.
func (e *Engine) Status(ctx context.Context) (Report, error) {
	now := e.now()
	byStatus, err := e.Repo.CountByStatus(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count by status: %w", err)
	}
	orphaned, err := e.Repo.CountBefore(ctx, e.orphanFilter(now))
	if err != nil {
		return Report{}, fmt.Errorf("count orphaned: %w", err)
	}
	retryReady, err := e.Repo.CountBefore(ctx, e.retryReadyFilter(now))
	if err != nil {
		return Report{}, fmt.Errorf("count retry ready: %w", err)
	}
	report := Report{
		ByStatus:    make(map[interviews.Status]int, len(interviews.AllStatuses)),
		Orphaned:    orphaned,
		RetryReady:  retryReady,
		GeneratedAt: now,
		Policy: PolicyView{
			OrphanTimeoutMinutes: e.Config.OrphanTimeout.Minutes(),
			RetryDelayMinutes:    e.Config.RetryDelay.Minutes(),
			MaxRetryAttempts:     e.Config.MaxRetryAttempts,
			CleanupFloorDays:     e.Config.CleanupFloorDays,
		},
	}
	for _, s := range interviews.AllStatuses {
		report.ByStatus[s] = 0
	}
	for s, n := range byStatus {
		report.ByStatus[s] = n
		report.Total += n
	}
	return report, nil
}

// OrphanView is the diagnostic listing entry for a stalled interview.
type OrphanView struct {
	ID                string            `json:"id"`
	OwnerRef          string            `json:"owner_ref"`
	Status            interviews.Status `json:"status"`
	StartedAt         *time.Time        `json:"started_at"`
	RetryCount        int               `json:"retry_count"`
	ChunksTotal       int               `json:"chunks_total"`
	ChunksProcessed   int               `json:"chunks_processed"`
	ProcessingMinutes float64           `json:"processing_minutes"`
}

// ListOrphaned returns interviews currently stalled past the orphan timeout.
func (e *Engine) ListOrphaned(ctx context.Context) ([]OrphanView, error) {
	now := e.now()
	filter := e.orphanFilter(now)
	filter.Limit = e.Config.ScanLimit
	found, err := e.Repo.FindBefore(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find orphaned: %w", err)
	}
	out := make([]OrphanView, 0, len(found))
	for _, i := range found {
		out = append(out, OrphanView{
			ID:                i.ID,
			OwnerRef:          i.OwnerRef,
			Status:            i.Status,
			StartedAt:         i.StartedAt,
			RetryCount:        i.RetryCount,
			ChunksTotal:       i.ChunksTotal,
			ChunksProcessed:   i.ChunksProcessed,
			ProcessingMinutes: i.ProcessingMinutes(now),
		})
	}
	return out, nil
}

// ForceRetry runs the retry step for one interview immediately, ignoring the
// retry delay. The attempt budget still applies: an exhausted interview is
// finalized instead of requeued.
func (e *Engine) ForceRetry(ctx context.Context, id string) (RetryOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	interview, err := e.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, interviews.ErrNotFound) {
			return "", fmt.Errorf("interview %s: %w", id, err)
		}
		return "", err
	}
	if interview.Status != interviews.StatusFailed || interview.PermanentlyFailed() {
		return "", fmt.Errorf("%w: status %s", ErrNotRetryable, describe(interview))
	}

	var res CycleResult
	outcome, err := e.retryOne(ctx, interview, e.now(), &res)
	if err != nil {
		return "", err
	}
	telemetry.Info("recovery.force_retry", map[string]any{
		"request_id":   requestid.From(ctx),
		"interview_id": id,
		"outcome":      string(outcome),
	})
	if outcome == OutcomeConflict {
		return outcome, ErrConflict
	}
	return outcome, nil
}

func describe(i interviews.Interview) string {
	if i.PermanentlyFailed() {
		return "failed (permanent)"
	}
	return string(i.Status)
}

// Cleanup deletes completed and failed interviews created more than days ago.
// Pending and active interviews are never deleted.
func (e *Engine) Cleanup(ctx context.Context, days int) (int64, error) {
	if days < e.Config.CleanupFloorDays {
		return 0, fmt.Errorf("%w: %d days requested, minimum is %d", ErrCleanupTooRecent, days, e.Config.CleanupFloorDays)
	}
	cutoff := e.now().Add(-time.Duration(days) * 24 * time.Hour)
	deleted, err := e.Repo.DeleteBefore(ctx, []interviews.Status{interviews.StatusCompleted, interviews.StatusFailed}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete interviews: %w", err)
	}
	metrics.AddCleanupDeleted(deleted)
	telemetry.Info("recovery.cleanup.completed", map[string]any{
		"request_id": requestid.From(ctx),
		"days":       days,
		"cutoff":     cutoff.Format(time.RFC3339),
		"deleted":    deleted,
	})
	return deleted, nil
}
