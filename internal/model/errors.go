package model

import (
	"errors"
	"fmt"
)

// ValidationError reports user-correctable input problems.
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

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

var (
	// ErrStoreUnavailable wraps timeouts and connection failures. Callers may retry.
	ErrStoreUnavailable = errors.New("Store temporarily unavailable")
	ErrForbidden        = errors.New("Forbidden")
)

// Token API error codes (used in HTTP responses)
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)
