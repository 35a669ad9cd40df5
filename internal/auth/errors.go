package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
)

// ValidationError carries a client-facing message for malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrLoginLocked signals that the client exhausted its login attempt
// budget. RetryAfter is the time left until the lockout window resets.
type ErrLoginLocked struct {
	RetryAfter time.Duration
}

func (e ErrLoginLocked) Error() string {
	return "login temporarily locked"
}
