package store

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// GenerateShareToken returns a fresh capability token for an asset
// share. The clear token is shown to the creator exactly once.
func GenerateShareToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashShareToken derives the stored bcrypt hash for a token.
func HashShareToken(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
}

// VerifyShareToken reports whether token matches the stored hash.
func VerifyShareToken(hash []byte, token string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil
}
