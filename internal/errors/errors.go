package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Tabula error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrDeleteFailed   ErrorCode = "DELETE_FAILED"   // 422
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrStorage        ErrorCode = "STORAGE"         // 503
)

// TabulaError represents a structured error with code, status, and details.
type TabulaError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *TabulaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TabulaError {
	return &TabulaError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a photo, trash entry or consent handle that does not exist.
func NewNotFound(kind, identifier string) *TabulaError {
	return &TabulaError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error, e.g. an operation on a closed review session.
func NewConflict(msg string) *TabulaError {
	return &TabulaError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewDeleteFailed creates a 422 error when the media store removed nothing.
func NewDeleteFailed(reason string, uris []string) *TabulaError {
	return &TabulaError{
		Code:    ErrDeleteFailed,
		Status:  422,
		Message: fmt.Sprintf("delete failed: %s", reason),
		Details: map[string]any{"uris": uris},
	}
}

// NewStorage creates a 503 error when the index or trash store cannot be read or written.
func NewStorage(err error) *TabulaError {
	msg := "storage unavailable"
	if err != nil {
		msg = err.Error()
	}
	return &TabulaError{
		Code:    ErrStorage,
		Status:  503,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TabulaError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TabulaError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error (or anything it wraps) is a TabulaError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TabulaError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}
