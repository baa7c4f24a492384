// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionDisposed   = errors.New("session is disposed")
	ErrNoProject         = errors.New("no open project")
	ErrRunConfigNotFound = errors.New("run configuration not found")
	ErrInvalidToken      = errors.New("invalid pairing token")
	ErrNotApproved       = errors.New("device is not approved")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrHubNotRunning     = errors.New("event hub is not running")
	ErrSubscriberClosed  = errors.New("subscriber is closed")
	ErrClosed            = errors.New("closed")
)

// Error codes for client responses.
const (
	ErrCodeInvalidToken  = "invalid_token"
	ErrCodeUnknownType   = "unknown_type"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeInternalError = "internal_error"
)

// HostError represents a failure reported by the host while performing an
// operation on behalf of a client.
type HostError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host %s: %v", e.Op, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// NewHostError creates a new HostError.
func NewHostError(op string, err error) *HostError {
	return &HostError{
		Op:  op,
		Err: err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
