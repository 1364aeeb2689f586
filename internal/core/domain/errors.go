package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure is returned for unknown email and wrong password alike.
	ErrAuthFailure = errors.New("unable to log in")
	// ErrInvalidToken covers malformed, expired and badly-signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionNotFound means the token is well-formed but no longer live.
	ErrSessionNotFound = errors.New("session not found")

	ErrAccountNotFound = errors.New("account not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrAvatarNotFound  = errors.New("avatar not found")

	// ErrUnsupportedFormat is returned by the avatar transform on non-raster input.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrInvalidUpdates rejects an update carrying keys outside the allow-list.
	ErrInvalidUpdates = &ValidationError{Message: "invalid updates"}
)

// ValidationError is a client-correctable, field-level rejection.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrAvatarNotFound)
}
