package interviews

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores interviews in memory and is safe for concurrent use.
// Conditional updates are serialized by the mutex, which gives the same
// single-winner behavior as the Postgres WHERE clause.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Interview
	bySource map[string]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:     make(map[string]Interview),
		bySource: make(map[string]string),
	}
}

// Create stores the interview.
func (r *MemoryRepo) Create(ctx context.Context, interview Interview) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(interview); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySource[interview.SourceMessageID]; ok {
		return ErrDuplicate
	}
	if _, ok := r.byID[interview.ID]; ok {
		return ErrDuplicate
	}
	if interview.UpdatedAt.IsZero() {
		interview.UpdatedAt = interview.CreatedAt
	}
	r.byID[interview.ID] = interview
	r.bySource[interview.SourceMessageID] = interview.ID
	return nil
}

// GetByID returns an interview by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Interview, error) {
	if err := ctx.Err(); err != nil {
		return Interview{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	interview, ok := r.byID[id]
	if !ok {
		return Interview{}, ErrNotFound
	}
	return interview, nil
}

// GetBySourceMessageID returns the interview created for a source message.
func (r *MemoryRepo) GetBySourceMessageID(ctx context.Context, sourceMessageID string) (Interview, error) {
	if err := ctx.Err(); err != nil {
		return Interview{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySource[sourceMessageID]
	if !ok {
		return Interview{}, ErrNotFound
	}
	return r.byID[id], nil
}

// FindBefore returns matching interviews, oldest first by the filter field.
func (r *MemoryRepo) FindBefore(ctx context.Context, filter Filter) ([]Interview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Interview, 0)
	for _, interview := range r.byID {
		if filter.Matches(interview) {
			out = append(out, interview)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		ta, _ := filter.timestamp(out[a])
		tb, _ := filter.timestamp(out[b])
		if ta.Equal(tb) {
			return out[a].ID < out[b].ID
		}
		return ta.Before(tb)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountBefore counts matching interviews.
func (r *MemoryRepo) CountBefore(ctx context.Context, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, interview := range r.byID {
		if filter.Matches(interview) {
			count++
		}
	}
	return count, nil
}

// CountByStatus returns the number of interviews per status.
func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[Status]int)
	for _, interview := range r.byID {
		counts[interview.Status]++
	}
	return counts, nil
}

// UpdateConditional applies patch if the stored interview still matches expect.
func (r *MemoryRepo) UpdateConditional(ctx context.Context, id string, expect Expect, patch Patch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	interview, ok := r.byID[id]
	if !ok || !expect.Matches(interview) {
		return false, nil
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = time.Now().UTC()
	}
	patch.Apply(&interview)
	r.byID[id] = interview
	return true, nil
}

// DeleteBefore removes interviews in the given statuses created before the cutoff.
func (r *MemoryRepo) DeleteBefore(ctx context.Context, statuses []Status, createdBefore time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(statuses) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, interview := range r.byID {
		if containsStatus(statuses, interview.Status) && interview.CreatedAt.Before(createdBefore) {
			delete(r.byID, id)
			delete(r.bySource, interview.SourceMessageID)
			deleted++
		}
	}
	return deleted, nil
}

var _ Repo = (*MemoryRepo)(nil)
