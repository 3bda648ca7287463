package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"interview-backend/internal/interviews"
	"interview-backend/internal/recovery"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/telemetry"
)

func TestMain(m *testing.M) {
	restore := telemetry.SetOutput(&bytes.Buffer{})
	code := m.Run()
	restore()
	os.Exit(code)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	engine, err := recovery.NewEngine(interviews.NewMemoryRepo(), nil, nil, recovery.DefaultConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	trigger := &recovery.Trigger{Runner: engine}
	return NewRouter(RouterDeps{
		Config:   config.Config{AdminToken: "secret"},
		Recovery: recovery.NewHandler(engine, trigger),
	})
}

func TestHealthIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestMetricsIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRecoveryRoutesRequireAdminToken(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recovery/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recovery/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
