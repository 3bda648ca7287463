package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/shared/auth"
)

func newAuthRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminToken(token))
	r.GET("/api/v1/recovery/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator": OperatorFromContext(c)})
	})
	return r
}

func TestAdminTokenRejectsMissingAndWrongTokens(t *testing.T) {
	r := newAuthRouter("s3cret")
	cases := map[string]func(*http.Request){
		"missing":    func(*http.Request) {},
		"not bearer": func(req *http.Request) { req.Header.Set("Authorization", "Basic abc") },
		"wrong":      func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") },
		"wrong hdr":  func(req *http.Request) { req.Header.Set("X-Admin-Token", "nope") },
	}
	for name, mutate := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/recovery/status", nil)
		mutate(req)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.Code)
		}
	}
}

func TestAdminTokenAcceptsBearerAndHeader(t *testing.T) {
	r := newAuthRouter("s3cret")
	for _, set := range []func(*http.Request){
		func(req *http.Request) { req.Header.Set("Authorization", "Bearer s3cret") },
		func(req *http.Request) { req.Header.Set("X-Admin-Token", "s3cret") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/recovery/status", nil)
		set(req)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
	}
}

func TestAdminTokenDisabledWhenEmpty(t *testing.T) {
	r := newAuthRouter("")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/recovery/status", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAdminTokenAcceptsSignedOperatorToken(t *testing.T) {
	r := newAuthRouter("s3cret")
	token, err := auth.NewSigner("s3cret").Sign("alice", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/recovery/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "alice") {
		t.Fatalf("expected 200 for alice, got %d %s", resp.Code, resp.Body.String())
	}

	forged, _ := auth.NewSigner("other").Sign("mallory", time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/recovery/status", nil)
	req.Header.Set("X-Admin-Token", forged)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", resp.Code)
	}
}
