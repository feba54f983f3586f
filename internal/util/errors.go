// internal/util/errors.go
package util

import (
	"errors"
	"fmt"
)

// Common application-specific errors. The API layer translates these into HTTP status codes.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input provided")
	ErrConflict     = errors.New("resource already exists") // Uniqueness violation reported by the store
	ErrUnavailable  = errors.New("database unavailable")    // Pool exhausted, acquire timeout or broken connection
	ErrDataError    = errors.New("unexpected data shape")   // Zero/many rows where one expected, column type mismatch
)

// FieldError is an ErrInvalidInput that names the offending request field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("missing or invalid field: %s", e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

// InvalidField returns an ErrInvalidInput naming field.
func InvalidField(field string) error {
	return &FieldError{Field: field}
}

// IsError reports whether any error in err's chain matches target.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
