package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a uartscope error code.
type ErrorCode string

const (
	ErrConfiguration  ErrorCode = "CONFIGURATION_ERROR" // 400
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"           // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"      // 404
	ErrInvalidCapture ErrorCode = "INVALID_CAPTURE"     // 422
	ErrCancelled      ErrorCode = "CANCELLED"           // 499
	ErrInternal       ErrorCode = "INTERNAL"            // 500
)

// ScopeError represents a structured error with code, status, and details.
type ScopeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ScopeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewConfiguration creates a 400 error for a channel configuration that cannot be decoded.
// The field names the offending setting (e.g. "bits", "rxd").
func NewConfiguration(field, msg string) *ScopeError {
	return &ScopeError{
		Code:    ErrConfiguration,
		Status:  400,
		Message: msg,
		Details: map[string]any{"field": field},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ScopeError {
	return &ScopeError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a decode run cannot be found.
func NewNotFound(identifier string) *ScopeError {
	return &ScopeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("decode run not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing capture, profile or import file.
func NewFileNotFound(path string) *ScopeError {
	return &ScopeError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewInvalidCapture creates a 422 error for capture data that cannot be parsed or is inconsistent.
func NewInvalidCapture(msg string) *ScopeError {
	return &ScopeError{
		Code:    ErrInvalidCapture,
		Status:  422,
		Message: msg,
	}
}

// NewCancelled creates a 499 error for an operation aborted through its context.
func NewCancelled(op string) *ScopeError {
	return &ScopeError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"operation": op},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ScopeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ScopeError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a ScopeError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *ScopeError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}
