package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/quadrant/internal/task"
)

// ErrorCode categorizes operation failures reported to the originating peer.
type ErrorCode string

const (
	// CodeValidation indicates a payload failed validation before reaching the store.
	CodeValidation ErrorCode = "VALIDATION_FAILED"

	// CodeNotFound indicates the targeted record (or parent) does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeStore indicates a store or connectivity failure. The reason sent to
	// the peer is generic; the cause is logged.
	CodeStore ErrorCode = "STORE_FAILURE"

	// CodeBadRequest indicates a payload that could not be decoded.
	CodeBadRequest ErrorCode = "BAD_REQUEST"

	// CodeUnknownEvent indicates an event name the engine does not handle.
	CodeUnknownEvent ErrorCode = "UNKNOWN_EVENT"
)

// genericStoreReason is the only store failure detail sent over the wire.
const genericStoreReason = "the task store is unavailable, try again"

// OperationError is a failure detected while handling one inbound event.
type OperationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Reason is the human-readable description sent to the peer.
	Reason string

	// Event is the inbound event name that failed.
	Event string

	// Err is the underlying cause, if any. Never sent to the peer.
	Err error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (event=%s): %v", e.Code, e.Reason, e.Event, e.Err)
	}
	return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Reason, e.Event)
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err is an OperationError with CodeNotFound.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Code == CodeNotFound
	}
	return false
}

// IsValidation returns true if err is an OperationError with CodeValidation.
func IsValidation(err error) bool {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Code == CodeValidation
	}
	return false
}

// NewNotFoundError reports a missing record.
func NewNotFoundError(event, id string) *OperationError {
	return &OperationError{
		Code:   CodeNotFound,
		Reason: fmt.Sprintf("task %s does not exist", id),
		Event:  event,
	}
}

// NewValidationError reports a rejected payload.
func NewValidationError(event, reason string) *OperationError {
	return &OperationError{Code: CodeValidation, Reason: reason, Event: event}
}

// classify maps any handler error onto an OperationError.
func classify(event string, err error) *OperationError {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe
	}

	var ve *task.ValidationError
	if errors.As(err, &ve) {
		return &OperationError{Code: CodeValidation, Reason: ve.Error(), Event: event}
	}

	if task.IsNotFound(err) {
		return &OperationError{Code: CodeNotFound, Reason: "task does not exist", Event: event, Err: err}
	}

	return &OperationError{Code: CodeStore, Reason: genericStoreReason, Event: event, Err: err}
}
