// Package passwords hashes and verifies member passwords with bcrypt.
package passwords

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrMismatch = errors.New("password mismatch")

type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt hasher. A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify returns ErrMismatch when plaintext does not match hash. A malformed hash is also a mismatch.
func (h *Hasher) Verify(hash, plaintext string) error {
	if hash == "" {
		return ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); err != nil {
		return ErrMismatch
	}
	return nil
}
