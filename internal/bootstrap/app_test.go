package bootstrap

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"interview-backend/internal/dispatch"
	"interview-backend/internal/interviews"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/telemetry"
)

func TestMain(m *testing.M) {
	restore := telemetry.SetOutput(&bytes.Buffer{})
	code := m.Run()
	restore()
	os.Exit(code)
}

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:             "dev",
		AdminToken:      "secret",
		QueueBackend:    "inline",
		ObjectStoreType: "local",
		LocalStoreDir:   t.TempDir(),
		LocalMediaDir:   t.TempDir(),
		ChunkSizeBytes:  4,
		Recovery: config.RecoveryPolicy{
			OrphanTimeout:    time.Hour,
			MaxRetryAttempts: 3,
			RetryDelay:       5 * time.Minute,
			CleanupFloorDays: 7,
			ScanLimit:        100,
		},
	}
}

func TestBuildDevDefaults(t *testing.T) {
	app, err := Build(context.Background(), devConfig(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	if _, ok := app.Repo.(*interviews.MemoryRepo); !ok {
		t.Fatalf("expected memory repo, got %T", app.Repo)
	}
	if _, ok := app.Dispatcher.Submitter.(dispatch.InlineSubmitter); !ok {
		t.Fatalf("expected inline submitter, got %T", app.Dispatcher.Submitter)
	}
	if app.Messaging.Name() != "log" {
		t.Fatalf("expected log provider, got %s", app.Messaging.Name())
	}

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
}

func TestBuildRejectsBadPolicy(t *testing.T) {
	cfg := devConfig(t)
	cfg.Recovery.OrphanTimeout = 0
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected policy error")
	}
}

func TestBuildRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected DATABASE_URL error")
	}
}

func TestInlineDispatchRunsPipeline(t *testing.T) {
	cfg := devConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.LocalMediaDir, "media-1"), []byte("voice-bytes"), 0o600); err != nil {
		t.Fatalf("write media: %v", err)
	}
	app, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	app.Dispatcher.Dispatch(context.Background(), dispatch.Request{
		OwnerRef:        "15551234567",
		SourceMessageID: "wamid.1",
		MediaID:         "media-1",
		Reason:          queue.ReasonIngest,
	})
	app.Dispatcher.Wait()

	got, err := app.Repo.GetBySourceMessageID(context.Background(), "wamid.1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// The placeholder LLM fails transcription, leaving the interview for recovery.
	if got.Status != interviews.StatusFailed || got.RetryCount != 0 {
		t.Fatalf("unexpected interview: %+v", got)
	}
	if got.ChunksTotal != 3 || got.AudioSizeBytes != 11 {
		t.Fatalf("unexpected progress: %+v", got)
	}
}
