package domain

import (
	"errors"
	"net/mail"
)

// ValidateEmail accepts a bare RFC 5322 address (no display name).
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return errors.New("must be a valid email address")
	}
	// Ensure no "Name <email@x>" format sneaks in.
	if addr.Address != email {
		return errors.New("must be a bare email address")
	}
	return nil
}
