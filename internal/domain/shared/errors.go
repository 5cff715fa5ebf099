// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Event intake errors
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrDuplicateEvent   = errors.New("duplicate event")

	// Catalog errors
	ErrRegistryLoad     = errors.New("achievement registry load failed")
	ErrInvalidCondition = errors.New("invalid achievement condition")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")
	ErrLockNotAcquired        = errors.New("lock not acquired")

	// Infrastructure errors
	ErrPersistence        = errors.New("persistence failure")
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "achievement", "progress", "activity"
	Op      string // Operation that failed, e.g., "Apply", "Award"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// MalformedEvent builds an ErrMalformedEvent for a missing or invalid field.
func MalformedEvent(op, field, reason string) *DomainError {
	return NewDomainError("activity", op, ErrMalformedEvent, fmt.Sprintf("%s: %s", field, reason))
}

// Persistence wraps a storage failure so callers can classify it as retryable.
func Persistence(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrPersistence, "storage operation failed", err)
}

// Achievement domain errors
var (
	ErrAchievementNotFound    = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrUnknownAchievementType = NewDomainError("achievement", "Decode", ErrInvalidCondition, "unknown achievement type")
	ErrEmptyCatalog           = NewDomainError("achievement", "Load", ErrRegistryLoad, "catalog is empty")
)

// Progress domain errors
var (
	ErrSnapshotNotFound = NewDomainError("progress", "Find", ErrNotFound, "snapshot not found")
	ErrSnapshotConflict = NewDomainError("progress", "Save", ErrOptimisticLock, "snapshot version changed concurrently")
)

// Notification errors
var (
	ErrNotificationFailed = NewDomainError("notification", "Send", ErrExternalService, "failed to deliver unlock notification")
	ErrNotifierThrottled  = NewDomainError("notification", "Send", ErrRateLimited, "notification rate limit exceeded")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsMalformed checks if the event was rejected for a missing or invalid field.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrMalformedEvent)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOptimisticLock) ||
		errors.Is(err, ErrLockNotAcquired) ||
		errors.Is(err, ErrPersistence)
}
