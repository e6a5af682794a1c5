package auth

import (
	"errors"
	"fmt"
)

// Credential verification failures.
var (
	ErrInvalidSubmission  = errors.New("invalid credential submission")
	ErrNotFoundLocally    = errors.New("no local account for email")
	ErrInvalidCredentials = errors.New("email or password is incorrect")
	ErrStoreUnavailable   = errors.New("user store unavailable")
)

// Session token failures. Callers that only care about "is there a
// session" treat all three as absence.
var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("session token expired")
	ErrMalformed    = errors.New("session token missing required claims")
)

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
