package domain

import "errors"

var (
	// ErrNotFound is returned when the addressed resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrQuotaExceeded is returned when a usage quota is exhausted.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrProvider is returned when an external AI, voice or OTP call fails.
	ErrProvider = errors.New("provider error")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation error")
	// ErrStorage is returned when the backing store is unavailable.
	ErrStorage = errors.New("storage error")
	// ErrUnauthorized is returned when the caller identity is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError describes rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError returns a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }
