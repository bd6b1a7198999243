package service

import (
	"errors"
	"fmt"
	"net/mail"
)

// maxEmailLength is the longest address a mail path can carry (RFC 5321).
const maxEmailLength = 254

var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrMissingPassword = errors.New("password is required")
)

// ValidateEmail checks that email, once normalized, is a bare address.
// Display-name forms such as "Ann <ann@example.com>" are rejected.
func ValidateEmail(email string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" || len(normalized) > maxEmailLength {
		return ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	if addr.Address != normalized || addr.Name != "" {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword only checks presence; strength rules belong to sign-up.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrMissingPassword
	}
	return nil
}
