// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-pktq.

package api

import "fmt"

// Common errors used across the library.
//
// Capacity exhaustion (lane full, pool empty) is not part of this set: it is
// an expected outcome and is reported through ok=false returns or the
// package-local ErrFull / ErrNoBuffer sentinels.
var (
	ErrBufferPoolClosed  = fmt.Errorf("buffer pool is closed")
	ErrNotInitialized    = fmt.Errorf("not initialized")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrResourceExhausted = fmt.Errorf("resource exhausted")
	ErrOutOfMemory       = fmt.Errorf("out of memory")
	ErrAlreadyExists     = fmt.Errorf("resource already exists")
	ErrNotFound          = fmt.Errorf("resource not found")
	ErrStaleHandle       = fmt.Errorf("stale packet handle")
	ErrWrongOwner        = fmt.Errorf("packet not owned by caller")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeOutOfMemory
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeOwnership
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel this error was classified from.
func (e *Error) Unwrap() error { return e.cause }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
		cause:   sentinelFor(code),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func sentinelFor(code ErrorCode) error {
	switch code {
	case ErrCodeInvalidArgument:
		return ErrInvalidArgument
	case ErrCodeResourceExhausted:
		return ErrResourceExhausted
	case ErrCodeOutOfMemory:
		return ErrOutOfMemory
	case ErrCodeAlreadyExists:
		return ErrAlreadyExists
	case ErrCodeNotFound:
		return ErrNotFound
	case ErrCodeOwnership:
		return ErrWrongOwner
	default:
		return nil
	}
}
