package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAmbiguousMatch = errors.New("ambiguous player match")
	ErrInvalidRole    = errors.New("invalid role")
	ErrLastAdmin      = errors.New("cannot remove last admin")
	ErrUnauthorized   = errors.New("invalid credentials")
)

// ValidationError reports input that was rejected before anything was written.
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

// IsRetryable implements retry.RetryableError. Bad input never gets better.
func (e *ValidationError) IsRetryable() bool { return false }

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransientStorageError is returned when the database stayed locked or busy
// after the bounded retries ran out. Callers may re-attempt the whole operation.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("transient storage failure during %s: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// IsRetryable implements retry.RetryableError.
func (e *TransientStorageError) IsRetryable() bool { return true }

// FatalStorageError means the database file is unusable (unwritable, corrupt,
// or the schema could not be ensured). It aborts startup.
type FatalStorageError struct {
	Op  string
	Err error
}

func (e *FatalStorageError) Error() string {
	return fmt.Sprintf("fatal storage failure during %s: %v", e.Op, e.Err)
}

func (e *FatalStorageError) Unwrap() error { return e.Err }

func (e *FatalStorageError) IsRetryable() bool { return false }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err is (or wraps) a TransientStorageError.
func IsTransient(err error) bool {
	var te *TransientStorageError
	return errors.As(err, &te)
}

// IsFatal reports whether err is (or wraps) a FatalStorageError.
func IsFatal(err error) bool {
	var fe *FatalStorageError
	return errors.As(err, &fe)
}
