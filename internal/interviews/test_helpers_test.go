package interviews

import (
	"context"
	"testing"
	"time"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newInterview(id string, status Status) Interview {
	i := Interview{
		ID:              id,
		OwnerRef:        "15550001111",
		Platform:        "whatsapp",
		SourceMessageID: "msg-" + id,
		MediaID:         "media-" + id,
		Status:          status,
		CreatedAt:       baseTime.Add(-24 * time.Hour),
		UpdatedAt:       baseTime.Add(-24 * time.Hour),
	}
	if IsActive(status) {
		started := baseTime.Add(-10 * time.Minute)
		i.StartedAt = &started
	}
	if status == StatusCompleted {
		done := baseTime.Add(-time.Hour)
		i.CompletedAt = &done
	}
	return i
}

func seed(t *testing.T, repo Repo, items ...Interview) {
	t.Helper()
	for _, item := range items {
		if err := repo.Create(context.Background(), item); err != nil {
			t.Fatalf("Create(%s): %v", item.ID, err)
		}
	}
}

func timePtr(t time.Time) *time.Time { return &t }
