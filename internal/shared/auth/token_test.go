package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := Signer{Secret: []byte("secret"), Now: func() time.Time { return now }}

	token, err := s.Sign("alice", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected three segments: %s", token)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "alice" || claims.Exp != now.Add(time.Hour).Unix() {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSigner("secret")
	token, err := s.Sign("alice", 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewSigner("other").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := s.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := Signer{Secret: []byte("secret"), Now: func() time.Time { return now }}
	token, err := s.Sign("alice", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	s.Now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := s.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestSignRequiresSecretAndOperator(t *testing.T) {
	if _, err := NewSigner("").Sign("alice", 0); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
	if _, err := NewSigner("secret").Sign(" ", 0); err == nil {
		t.Fatalf("expected operator error")
	}
}
