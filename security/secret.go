package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptySecret is returned when hashing an empty client secret.
var ErrEmptySecret = errors.New("client secret must not be empty")

// HashClientSecret returns the bcrypt hash used to store a client secret.
// The secret is pre-hashed with SHA-256 so inputs beyond bcrypt's 72 byte
// limit are not silently truncated.
func HashClientSecret(secret string, cost int) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword(prehash(secret), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}
	return hash, nil
}

// CompareClientSecret reports whether secret matches hash. bcrypt compares in
// constant time; an empty hash never matches.
func CompareClientSecret(hash []byte, secret string) bool {
	if len(hash) == 0 || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, prehash(secret)) == nil
}

// NewDummySecretHash returns a hash of a random secret at the given cost.
// Authenticating an unknown client compares against it so that the response
// time does not reveal whether the client id exists.
func NewDummySecretHash(cost int) ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate dummy secret: %w", err)
	}
	return HashClientSecret(base64.RawURLEncoding.EncodeToString(buf), cost)
}

// ConstantTimeEqual compares two strings without leaking the position of the
// first difference. Both sides are digested first so that unequal lengths
// take the same time as equal ones.
func ConstantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

func prehash(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return []byte(base64.RawStdEncoding.EncodeToString(sum[:]))
}
