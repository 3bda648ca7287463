package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashOwnerRef returns a path-safe identifier for an owner reference such as
// a phone number, so raw contact details never appear in storage keys.
func HashOwnerRef(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
