package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateSessionID validates a provider session id. Providers use opaque
// tokens rather than UUIDs, so only shape is checked.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return errors.New("session ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("session ID exceeds maximum length")
	}
	return nil
}

// ValidateOrgID validates an organization ID.
func ValidateOrgID(id string) error {
	if len(id) == 0 {
		return errors.New("organization ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("organization ID exceeds maximum length")
	}
	return nil
}

// ValidateUtterance validates user-supplied message text.
func ValidateUtterance(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}
