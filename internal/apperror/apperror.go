package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four failure classes the application recovers from.
// Callers check them with errors.Is(), which walks the wrap chain.
//
// No error here is process-fatal: every one of them is caught at the service
// or handler boundary and translated into a user-facing message.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrUnavailable  = errors.New("backend unavailable")
	ErrImportRecord = errors.New("import record error")
)

// AppError carries a sentinel plus a human-readable message.
type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports that the referenced row does not exist.
// HTTP handlers map this to 404.
func NotFound(resource string, id int64) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %d", resource, id),
	}
}

// ValidationFailed reports a missing or malformed input field.
// These errors are raised before anything reaches storage.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unavailable reports that the hosted backend could not be reached.
// There is no automatic fallback to the local store — the failure
// surfaces to the caller. HTTP handlers map this to 502.
func Unavailable(operation string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: fmt.Sprintf("storage backend unavailable during %s: %v", operation, cause),
	}
}

// ImportRecord reports a single malformed record inside a bulk import.
// It is collected into the import summary and never aborts the batch.
func ImportRecord(title, message string) *AppError {
	if title == "" {
		title = "(untitled)"
	}
	return &AppError{
		Err:     ErrImportRecord,
		Message: fmt.Sprintf("%s: %s", title, message),
	}
}
