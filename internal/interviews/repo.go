package interviews

import (
	"context"
	"time"
)

// TimeField selects the timestamp a Filter compares against.
type TimeField string

const (
	FieldStartedAt TimeField = "started_at"
	FieldCreatedAt TimeField = "created_at"
	// FieldRetryClock is last_retry_at, falling back to updated_at when no retry happened yet.
	FieldRetryClock TimeField = "retry_clock"
)

// Filter selects interviews by status set and a strict timestamp cutoff.
type Filter struct {
	Statuses []Status
	Field    TimeField
	Before   time.Time
	// RetryCountBelow keeps rows with retry_count < RetryCountBelow when positive.
	RetryCountBelow int
	// Unfinalized keeps rows whose completed_at is null.
	Unfinalized bool
	Limit       int
}

// Matches reports whether i satisfies the filter.
func (f Filter) Matches(i Interview) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, i.Status) {
		return false
	}
	if f.RetryCountBelow > 0 && i.RetryCount >= f.RetryCountBelow {
		return false
	}
	if f.Unfinalized && i.CompletedAt != nil {
		return false
	}
	if f.Field == "" {
		return true
	}
	ts, ok := f.timestamp(i)
	if !ok {
		return false
	}
	return ts.Before(f.Before)
}

func (f Filter) timestamp(i Interview) (time.Time, bool) {
	switch f.Field {
	case FieldStartedAt:
		if i.StartedAt == nil {
			return time.Time{}, false
		}
		return *i.StartedAt, true
	case FieldCreatedAt:
		return i.CreatedAt, true
	case FieldRetryClock:
		return i.RetryClock(), true
	}
	return time.Time{}, false
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Repo persists interviews. Every status change goes through UpdateConditional.
type Repo interface {
	Create(ctx context.Context, interview Interview) error
	GetByID(ctx context.Context, id string) (Interview, error)
	GetBySourceMessageID(ctx context.Context, sourceMessageID string) (Interview, error)
	FindBefore(ctx context.Context, filter Filter) ([]Interview, error)
	CountBefore(ctx context.Context, filter Filter) (int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// UpdateConditional applies patch only if the stored row still matches expect.
	// It returns false when the precondition no longer holds or the row is gone.
	UpdateConditional(ctx context.Context, id string, expect Expect, patch Patch) (bool, error)
	DeleteBefore(ctx context.Context, statuses []Status, createdBefore time.Time) (int64, error)
}

// ApplyTransition runs a planned transition through the repo.
func ApplyTransition(ctx context.Context, repo Repo, t Transition) (bool, error) {
	return repo.UpdateConditional(ctx, t.ID, t.Expect, t.Patch)
}
