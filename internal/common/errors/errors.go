// Package errors provides the standardized error taxonomy of the ledger.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation: malformed or missing command fields.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Business rules: rejected before anything is appended.
	ErrCodeInvalidStatus ErrorCode = "INVALID_STATUS"
	ErrCodeAlreadyPaid   ErrorCode = "ALREADY_PAID"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"

	// Concurrency: the event is durable, the snapshot write lost the race.
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	ErrCodeInvalidEventSequence ErrorCode = "INVALID_EVENT_SEQUENCE"

	// Infrastructure.
	ErrCodeStorageUnavailable     ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeNotificationTimeout    ErrorCode = "NOTIFICATION_TIMEOUT"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so the package
// sentinels below can be used with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation             = &StandardError{Code: ErrCodeValidationFailed}
	ErrInvalidStatus          = &StandardError{Code: ErrCodeInvalidStatus}
	ErrAlreadyPaid            = &StandardError{Code: ErrCodeAlreadyPaid}
	ErrNotFound               = &StandardError{Code: ErrCodeNotFound}
	ErrConcurrentModification = &StandardError{Code: ErrCodeConcurrentModification}
	ErrInvalidEventSequence   = &StandardError{Code: ErrCodeInvalidEventSequence}
	ErrStorageUnavailable     = &StandardError{Code: ErrCodeStorageUnavailable}
	ErrNotificationSendFailed = &StandardError{Code: ErrCodeNotificationSendFailed}
	ErrNotificationTimeout    = &StandardError{Code: ErrCodeNotificationTimeout}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Command validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationErrorf is NewValidationError with formatting.
func NewValidationErrorf(format string, args ...interface{}) *StandardError {
	return NewValidationError(fmt.Sprintf(format, args...))
}

// NewInvalidStatusError creates a business-rule error for an unknown status value.
func NewInvalidStatusError(status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidStatus,
		Message:   "Status is not one of the allowed values",
		Details:   fmt.Sprintf("status: %s", status),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadyPaidError is returned when payment is verified twice.
func NewAlreadyPaidError(arID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadyPaid,
		Message:   "AR is already paid",
		Details:   fmt.Sprintf("arId: %s", arID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable lookup error.
func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConcurrentModificationError is retryable by reloading, never by resubmitting blindly.
func NewConcurrentModificationError(arID string, expectedVersion int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeConcurrentModification,
		Message:   "Snapshot was modified concurrently",
		Details:   fmt.Sprintf("arId: %s, expectedVersion: %d", arID, expectedVersion),
		Retryable: true,
		Metadata:  map[string]interface{}{"arId": arID, "expectedVersion": expectedVersion},
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidEventSequenceError reports a sequence that cannot be replayed.
func NewInvalidEventSequenceError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidEventSequence,
		Message:   "Invalid event sequence",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageUnavailableError wraps a backing store failure.
func NewStorageUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageUnavailable,
		Message:   "Backing store error",
		Details:   fmt.Sprintf("operation: %s, error: %v", operation, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %v", channel, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewNotificationTimeoutError is a send attempt that exceeded its deadline.
func NewNotificationTimeoutError(channel string, timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationTimeout,
		Message:   "Notification delivery timed out",
		Details:   fmt.Sprintf("channel: %s, timeout: %s", channel, timeout),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// CodeOf returns the code of the first StandardError in err's chain, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// GetRetryCount returns the recommended caller retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorageUnavailable,
		ErrCodeNotificationSendFailed,
		ErrCodeNotificationTimeout:
		return 3
	case ErrCodeConcurrentModification:
		return 1
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case code == ErrCodeValidationFailed:
		return "VALIDATION"
	case code == ErrCodeInvalidStatus, code == ErrCodeAlreadyPaid, code == ErrCodeNotFound:
		return "BUSINESS_RULE"
	case code == ErrCodeConcurrentModification:
		return "CONCURRENCY"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "STORAGE"), strings.Contains(codeStr, "SEQUENCE"):
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}
