package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Claims identifies an operator holding a scoped token.
type Claims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp,omitempty"`
	Iat int64  `json:"iat,omitempty"`
}

var (
	ErrMissingSecret = errors.New("token secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
)

// DefaultTTL is the lifetime of tokens signed without an explicit expiry.
const DefaultTTL = 24 * time.Hour

// Signer issues and verifies HS256 JWTs naming an operator. The admin token
// doubles as the signing secret, so operators can be handed short-lived
// personal tokens instead of the shared one.
type Signer struct {
	Secret []byte
	Now    func() time.Time
}

// NewSigner returns a Signer keyed by secret.
func NewSigner(secret string) Signer {
	return Signer{Secret: []byte(strings.TrimSpace(secret))}
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Sign issues a token for operator valid for ttl (DefaultTTL when zero).
func (s Signer) Sign(operator string, ttl time.Duration) (string, error) {
	if len(s.Secret) == 0 {
		return "", ErrMissingSecret
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return "", errors.New("operator is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now()
	claims := Claims{Sub: operator, Iat: now.Unix(), Exp: now.Add(ttl).Unix()}

	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signingInput + "." + s.sign(signingInput), nil
}

// Verify checks the signature and expiry and returns the claims.
func (s Signer) Verify(token string) (Claims, error) {
	if len(s.Secret) == 0 {
		return Claims{}, ErrMissingSecret
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}

	expected := s.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(parts[2]), []byte(expected)) {
		return Claims{}, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Sub == "" {
		return Claims{}, ErrInvalidToken
	}
	if claims.Exp > 0 && s.now().Unix() > claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func (s Signer) sign(input string) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
