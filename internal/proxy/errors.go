package proxy

import (
	"errors"
	"fmt"
)

// ProtocolError represents a violation of the upgrade protocol detected
// during dispatch.
//
// Protocol errors include:
//   - Call before initialization, or re-entry into the initializer
//   - Privileged operation by a non-owner
//   - Upgrade to an unknown or schema-incompatible implementation
//
// Every protocol error is terminal for the call that raised it: nothing is
// committed, and the caller decides whether to retry with corrected input.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// InstanceID identifies the affected component instance.
	InstanceID string

	// Op identifies the dispatched operation.
	Op string

	// Handle identifies the implementation handle (for upgrade errors).
	Handle string
}

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeNotInitialized indicates a call before initialization, or
	// against an instance with no registered implementation.
	ErrCodeNotInitialized ProtocolErrorCode = "NOT_INITIALIZED"

	// ErrCodeAlreadyInitialized indicates re-entry into the initializer.
	ErrCodeAlreadyInitialized ProtocolErrorCode = "ALREADY_INITIALIZED"

	// ErrCodeUnauthorized indicates a privileged call by a non-owner.
	ErrCodeUnauthorized ProtocolErrorCode = "UNAUTHORIZED"

	// ErrCodeInvalidOwner indicates an empty or null owner principal.
	ErrCodeInvalidOwner ProtocolErrorCode = "INVALID_OWNER"

	// ErrCodeInvalidHandle indicates an unknown, undeployed, or zero
	// implementation handle.
	ErrCodeInvalidHandle ProtocolErrorCode = "INVALID_HANDLE"

	// ErrCodeIncompatibleSchema indicates the proposed implementation's
	// schema is not a prefix-compatible superset of the current one.
	ErrCodeIncompatibleSchema ProtocolErrorCode = "INCOMPATIBLE_SCHEMA"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.InstanceID != "" && e.Op != "" {
		return fmt.Sprintf("%s: %s (instance=%s, op=%s)", e.Code, e.Message, e.InstanceID, e.Op)
	}
	if e.InstanceID != "" {
		return fmt.Sprintf("%s: %s (instance=%s)", e.Code, e.Message, e.InstanceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the protocol error code from an error chain.
// Returns "" if the error is not a ProtocolError.
func CodeOf(err error) ProtocolErrorCode {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsNotInitialized reports whether err is a NOT_INITIALIZED protocol error.
func IsNotInitialized(err error) bool {
	return CodeOf(err) == ErrCodeNotInitialized
}

// IsAlreadyInitialized reports whether err is an ALREADY_INITIALIZED
// protocol error.
func IsAlreadyInitialized(err error) bool {
	return CodeOf(err) == ErrCodeAlreadyInitialized
}

// IsUnauthorized reports whether err is an UNAUTHORIZED protocol error.
func IsUnauthorized(err error) bool {
	return CodeOf(err) == ErrCodeUnauthorized
}

// IsIncompatibleSchema reports whether err is an INCOMPATIBLE_SCHEMA
// protocol error.
func IsIncompatibleSchema(err error) bool {
	return CodeOf(err) == ErrCodeIncompatibleSchema
}

func newNotInitialized(instanceID, op string) *ProtocolError {
	return &ProtocolError{
		Code:       ErrCodeNotInitialized,
		Message:    "instance has no initialized implementation",
		InstanceID: instanceID,
		Op:         op,
	}
}

func newAlreadyInitialized(instanceID string) *ProtocolError {
	return &ProtocolError{
		Code:       ErrCodeAlreadyInitialized,
		Message:    "initializer may run at most once",
		InstanceID: instanceID,
		Op:         OpInitialize,
	}
}

func newUnauthorized(instanceID, op, caller string) *ProtocolError {
	return &ProtocolError{
		Code:       ErrCodeUnauthorized,
		Message:    fmt.Sprintf("caller %q is not the owner", caller),
		InstanceID: instanceID,
		Op:         op,
	}
}

func newInvalidOwner(instanceID, op string) *ProtocolError {
	return &ProtocolError{
		Code:       ErrCodeInvalidOwner,
		Message:    "owner principal must be non-empty",
		InstanceID: instanceID,
		Op:         op,
	}
}

func newInvalidHandle(instanceID, op, handle string) *ProtocolError {
	return &ProtocolError{
		Code:       ErrCodeInvalidHandle,
		Message:    fmt.Sprintf("implementation handle %q is not deployed", handle),
		InstanceID: instanceID,
		Op:         op,
		Handle:     handle,
	}
}

func newIncompatibleSchema(instanceID, handle string, cause error) *ProtocolError {
	return &ProtocolError{
		Code:       ErrCodeIncompatibleSchema,
		Message:    cause.Error(),
		InstanceID: instanceID,
		Op:         OpUpgrade,
		Handle:     handle,
	}
}
