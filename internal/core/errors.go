package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes shared by the engine, the HTTP layer and stored item results.
const (
	CodeTemplateValidation   = "TEMPLATE_VALIDATION"
	CodeValidationRejected   = "VALIDATION_REJECTED"
	CodeTransientUnavailable = "TRANSIENT_UNAVAILABLE"
	CodeDuplicateDetected    = "DUPLICATE_DETECTED"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

// TemplateValidationError reports placeholders that survived rendering.
type TemplateValidationError struct {
	ClientID string
	Bureau   Bureau
	Tokens   []string
	Message  string
}

func (e *TemplateValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("template validation failed for client %s: %s", e.ClientID, e.Message)
	}
	return fmt.Sprintf("template validation failed for client %s (%s): unresolved placeholders %s",
		e.ClientID, e.Bureau, strings.Join(e.Tokens, ", "))
}

// ValidationRejectedError is returned when the dispute store rejects a payload.
type ValidationRejectedError struct {
	Field  string
	Reason string
}

func (e *ValidationRejectedError) Error() string {
	if e.Field == "" {
		return "dispute rejected: " + e.Reason
	}
	return fmt.Sprintf("dispute rejected: %s: %s", e.Field, e.Reason)
}

// TransientUnavailableError marks a retryable store or network failure.
type TransientUnavailableError struct {
	Err error
}

func (e *TransientUnavailableError) Error() string {
	if e.Err == nil {
		return "dispute store temporarily unavailable"
	}
	return "dispute store temporarily unavailable: " + e.Err.Error()
}

func (e *TransientUnavailableError) Unwrap() error {
	return e.Err
}

// DuplicateDetectedError reports an equivalent dispute that already exists.
type DuplicateDetectedError struct {
	ExistingID string
	ClientID   string
	Bureau     Bureau
}

func (e *DuplicateDetectedError) Error() string {
	return fmt.Sprintf("duplicate dispute for client %s at %s (existing %s)", e.ClientID, e.Bureau, e.ExistingID)
}

// NotFoundError reports a missing template or client.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ErrorCode maps an error to its stable code.
func ErrorCode(err error) string {
	var (
		tve *TemplateValidationError
		vre *ValidationRejectedError
		tue *TransientUnavailableError
		dde *DuplicateDetectedError
		nfe *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &tve):
		return CodeTemplateValidation
	case errors.As(err, &vre):
		return CodeValidationRejected
	case errors.As(err, &tue):
		return CodeTransientUnavailable
	case errors.As(err, &dde):
		return CodeDuplicateDetected
	case errors.As(err, &nfe):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var tue *TransientUnavailableError
	return errors.As(err, &tue)
}
