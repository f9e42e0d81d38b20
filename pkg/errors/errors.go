package errors

import (
	"context"
	"errors"
	"fmt"
)

// ControlError is the error type shared across the control plane and the
// orchestrator. Code identifies the class; Cause carries the underlying
// failure for unwrapping.
type ControlError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ControlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ControlError) Unwrap() error { return e.Cause }

const (
	// ErrCodeConfiguration marks invalid profile or plan parameters,
	// rejected before any interface mutation.
	ErrCodeConfiguration = "CONFIG_INVALID"
	// ErrCodeControlPlane marks a failed impairment command; the service
	// rolls the interface back to the unset state before surfacing it.
	ErrCodeControlPlane = "CONTROL_PLANE"
	// ErrCodeRequest marks a single sample's network or timeout failure.
	// Absorbed into sample counts, never propagated as a run failure.
	ErrCodeRequest = "REQUEST_FAILED"
	// ErrCodeAbortThreshold is the phase-level signal that the failure
	// ratio is too high. It produces a degraded result, not an error.
	ErrCodeAbortThreshold = "ABORT_THRESHOLD"
	// ErrCodeFatal marks conditions under which guaranteed cleanup can no
	// longer be promised; the run terminates.
	ErrCodeFatal = "FATAL"
)

func ErrConfiguration(msg string, cause error) *ControlError {
	return &ControlError{Code: ErrCodeConfiguration, Message: msg, Cause: cause}
}

func ErrControlPlane(msg string, cause error) *ControlError {
	return &ControlError{Code: ErrCodeControlPlane, Message: msg, Cause: cause}
}

func ErrAbortThreshold(msg string) *ControlError {
	return &ControlError{Code: ErrCodeAbortThreshold, Message: msg}
}

func ErrFatal(msg string, cause error) *ControlError {
	return &ControlError{Code: ErrCodeFatal, Message: msg, Cause: cause}
}

func hasCode(err error, code string) bool {
	var ce *ControlError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

func IsConfiguration(err error) bool { return hasCode(err, ErrCodeConfiguration) }
func IsControlPlane(err error) bool  { return hasCode(err, ErrCodeControlPlane) }
func IsFatal(err error) bool         { return hasCode(err, ErrCodeFatal) }

func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
