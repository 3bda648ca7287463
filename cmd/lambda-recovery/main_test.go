package main

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"interview-backend/internal/interviews"
	"interview-backend/internal/recovery"
	"interview-backend/internal/shared/telemetry"
)

func TestMain(m *testing.M) {
	restore := telemetry.SetOutput(&bytes.Buffer{})
	code := m.Run()
	restore()
	os.Exit(code)
}

func TestRunScheduledRecoversOrphan(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	started := now.Add(-2 * time.Hour)
	repo := interviews.NewMemoryRepo()
	if err := repo.Create(context.Background(), interviews.Interview{
		ID:              "a1b2c3d4-0000-0000-0000-000000000000",
		OwnerRef:        "15551234567",
		SourceMessageID: "wamid.1",
		Status:          interviews.StatusTranscribing,
		StartedAt:       &started,
		CreatedAt:       started,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	engine, err := recovery.NewEngine(repo, nil, nil, recovery.DefaultConfig())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	engine.Now = func() time.Time { return now }

	res, err := runScheduled(context.Background(), &recovery.Trigger{Runner: engine}, events.CloudWatchEvent{ID: "evt-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.OrphansRecovered != 1 {
		t.Fatalf("expected one orphan recovered, got %+v", res)
	}
	got, _ := repo.GetByID(context.Background(), "a1b2c3d4-0000-0000-0000-000000000000")
	if got.Status != interviews.StatusFailed || got.RetryCount != 1 {
		t.Fatalf("unexpected interview: %+v", got)
	}
}
