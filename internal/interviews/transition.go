package interviews

import (
	"fmt"
	"time"
)

// ErrorOrphaned is recorded when a stalled interview is recovered by timeout.
const ErrorOrphaned = "orphaned"

var transitions = map[Status][]Status{
	StatusPending:      {StatusProcessing},
	StatusProcessing:   {StatusTranscribing, StatusFailed},
	StatusTranscribing: {StatusAnalyzing, StatusFailed},
	StatusAnalyzing:    {StatusCompleted, StatusFailed},
	StatusFailed:       {StatusPending, StatusFailed},
	StatusCompleted:    nil,
}

// CanTransition reports whether the status table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Expect is the precondition for a conditional update.
type Expect struct {
	Status Status
	// RetryCount, when set, must also match the stored value.
	RetryCount *int
	// Unfinalized requires completed_at to still be null.
	Unfinalized bool
}

// Patch lists the fields a conditional update writes. Nil fields are left untouched.
type Patch struct {
	Status          *Status
	RetryCount      *int
	LastRetryAt     *time.Time
	StartedAt       *time.Time
	ClearStartedAt  bool
	CompletedAt     *time.Time
	Error           *string // empty string clears the stored error
	ChunksTotal     *int
	ChunksProcessed *int
	AudioSizeBytes  *int64
	TranscriptKey   *string
	AnalysisKey     *string
	UpdatedAt       time.Time
}

// Matches reports whether the interview satisfies the precondition.
func (e Expect) Matches(i Interview) bool {
	if i.Status != e.Status {
		return false
	}
	if e.RetryCount != nil && i.RetryCount != *e.RetryCount {
		return false
	}
	if e.Unfinalized && i.CompletedAt != nil {
		return false
	}
	return true
}

// Apply writes the patch onto i.
func (p Patch) Apply(i *Interview) {
	if p.Status != nil {
		i.Status = *p.Status
	}
	if p.RetryCount != nil {
		i.RetryCount = *p.RetryCount
	}
	if p.LastRetryAt != nil {
		t := *p.LastRetryAt
		i.LastRetryAt = &t
	}
	if p.ClearStartedAt {
		i.StartedAt = nil
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		i.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		i.CompletedAt = &t
	}
	if p.Error != nil {
		i.Error = *p.Error
	}
	if p.ChunksTotal != nil {
		i.ChunksTotal = *p.ChunksTotal
	}
	if p.ChunksProcessed != nil {
		i.ChunksProcessed = *p.ChunksProcessed
	}
	if p.AudioSizeBytes != nil {
		i.AudioSizeBytes = *p.AudioSizeBytes
	}
	if p.TranscriptKey != nil {
		i.TranscriptKey = *p.TranscriptKey
	}
	if p.AnalysisKey != nil {
		i.AnalysisKey = *p.AnalysisKey
	}
	if !p.UpdatedAt.IsZero() {
		i.UpdatedAt = p.UpdatedAt
	}
}

// Transition is a planned conditional update for one interview.
type Transition struct {
	ID     string
	From   Status
	To     Status
	Expect Expect
	Patch  Patch
	// Permanent marks a transition that finalizes the interview as permanently failed.
	Permanent bool
}

// Label renders the transition for logs, e.g. "pending->processing".
func (t Transition) Label() string {
	if t.Permanent {
		return string(t.From) + "->failed(permanent)"
	}
	return string(t.From) + "->" + string(t.To)
}

func plan(i Interview, to Status, now time.Time) (Transition, error) {
	if i.Terminal() || !CanTransition(i.Status, to) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.Status, to)
	}
	status := to
	return Transition{
		ID:     i.ID,
		From:   i.Status,
		To:     to,
		Expect: Expect{Status: i.Status},
		Patch:  Patch{Status: &status, UpdatedAt: now},
	}, nil
}

// StartProcessing plans PENDING -> PROCESSING and stamps started_at.
func StartProcessing(i Interview, now time.Time) (Transition, error) {
	t, err := plan(i, StatusProcessing, now)
	if err != nil {
		return Transition{}, err
	}
	t.Patch.StartedAt = &now
	return t, nil
}

// Advance plans a forward pipeline step between active states.
func Advance(i Interview, to Status, now time.Time) (Transition, error) {
	if !IsActive(i.Status) || !IsActive(to) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.Status, to)
	}
	return plan(i, to, now)
}

// Complete plans ANALYZING -> COMPLETED.
func Complete(i Interview, now time.Time) (Transition, error) {
	t, err := plan(i, StatusCompleted, now)
	if err != nil {
		return Transition{}, err
	}
	t.Patch.CompletedAt = &now
	t.Patch.ClearStartedAt = true
	empty := ""
	t.Patch.Error = &empty
	return t, nil
}

// Fail plans the explicit pipeline failure path. retry_count is left unchanged.
func Fail(i Interview, reason string, now time.Time) (Transition, error) {
	if !IsActive(i.Status) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.Status, StatusFailed)
	}
	t, err := plan(i, StatusFailed, now)
	if err != nil {
		return Transition{}, err
	}
	t.Patch.Error = &reason
	t.Patch.ClearStartedAt = true
	return t, nil
}

// Orphan plans the timeout recovery path for a stalled active interview.
// The orphan counts as an attempt; when that would exceed maxAttempts the
// interview is finalized instead.
func Orphan(i Interview, maxAttempts int, now time.Time) (Transition, error) {
	if !IsActive(i.Status) {
		return Transition{}, fmt.Errorf("%w: %s is not active", ErrInvalidTransition, i.Status)
	}
	if i.RetryCount+1 > maxAttempts {
		return finalize(i, now)
	}
	t, err := plan(i, StatusFailed, now)
	if err != nil {
		return Transition{}, err
	}
	count := i.RetryCount + 1
	reason := ErrorOrphaned
	t.Expect.RetryCount = &i.RetryCount
	t.Patch.RetryCount = &count
	t.Patch.LastRetryAt = &now
	t.Patch.Error = &reason
	t.Patch.ClearStartedAt = true
	return t, nil
}

// Requeue plans FAILED -> PENDING for another attempt.
func Requeue(i Interview, maxAttempts int, now time.Time) (Transition, error) {
	if i.Status != StatusFailed {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.Status, StatusPending)
	}
	if i.RetryCount >= maxAttempts {
		return Transition{}, fmt.Errorf("%w: retry budget exhausted (%d/%d)", ErrInvalidTransition, i.RetryCount, maxAttempts)
	}
	t, err := plan(i, StatusPending, now)
	if err != nil {
		return Transition{}, err
	}
	count := i.RetryCount + 1
	empty := ""
	t.Expect.RetryCount = &i.RetryCount
	t.Expect.Unfinalized = true
	t.Patch.RetryCount = &count
	t.Patch.LastRetryAt = &now
	t.Patch.Error = &empty
	return t, nil
}

// Finalize plans the permanent failure of an interview that exhausted its retries.
func Finalize(i Interview, now time.Time) (Transition, error) {
	if i.Status != StatusFailed {
		return Transition{}, fmt.Errorf("%w: %s is not failed", ErrInvalidTransition, i.Status)
	}
	return finalize(i, now)
}

func finalize(i Interview, now time.Time) (Transition, error) {
	t, err := plan(i, StatusFailed, now)
	if err != nil {
		return Transition{}, err
	}
	reason := PermanentFailureReason(i.RetryCount)
	t.Expect.RetryCount = &i.RetryCount
	t.Expect.Unfinalized = true
	t.Patch.CompletedAt = &now
	t.Patch.Error = &reason
	t.Patch.ClearStartedAt = true
	t.Permanent = true
	return t, nil
}

// PermanentFailureReason is the error recorded on finalized interviews.
func PermanentFailureReason(attempts int) string {
	return fmt.Sprintf("Permanently failed after %d attempts", attempts)
}

// Progress plans an update that keeps the current active status, such as chunk counters.
func Progress(i Interview, patch Patch, now time.Time) (Transition, error) {
	if !IsActive(i.Status) {
		return Transition{}, fmt.Errorf("%w: %s is not active", ErrInvalidTransition, i.Status)
	}
	patch.Status = nil
	patch.UpdatedAt = now
	return Transition{
		ID:     i.ID,
		From:   i.Status,
		To:     i.Status,
		Expect: Expect{Status: i.Status},
		Patch:  patch,
	}, nil
}
