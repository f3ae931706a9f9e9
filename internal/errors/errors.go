package errors

import (
	"errors"
	"fmt"

	"reefdemog/domain/core"
)

// AppError represents a structured application error with a machine-readable
// code and enough detail to reproduce the failing call.
type AppError struct {
	Code    string
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a named detail (parameter name, offending value) to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an error with additional context, preserving an existing code
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Details: appErr.Details, Cause: err}
	}
	return &AppError{Code: CodeInternalError, Message: message, Cause: err}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code if it's an AppError, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Error codes of the query interface taxonomy
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeDataUnavailable  = "DATA_UNAVAILABLE"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeInvalidRange     = "INVALID_RANGE"
	CodeNoDataFound      = "NO_DATA_FOUND"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeModelFitFailed   = "MODEL_FITTING_FAILED"
	CodeInvalidMatrix    = "INVALID_MATRIX"
	CodeUnreachable      = "UNREACHABLE_TARGET"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Common error constructors

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DataUnavailable(message string) *AppError {
	return New(CodeDataUnavailable, message)
}

// InvalidParameter reports a malformed query parameter with its value echoed back
func InvalidParameter(param string, value interface{}, reason string) *AppError {
	return New(CodeInvalidParameter, fmt.Sprintf("invalid parameter %q: %s", param, reason)).
		WithDetail("parameter", param).
		WithDetail("value", value)
}

// InvalidRange reports a min/max pair where min exceeds max
func InvalidRange(param string, min, max interface{}) *AppError {
	return New(CodeInvalidRange, fmt.Sprintf("invalid range for %q: minimum exceeds maximum", param)).
		WithDetail("parameter", param).
		WithDetail("min", min).
		WithDetail("max", max)
}

func NoDataFound(message string) *AppError {
	return New(CodeNoDataFound, message)
}

// FromDomain converts a domain sentinel error into the boundary taxonomy.
// Unknown errors map to INTERNAL_ERROR so numerical failures never leak into a
// success envelope as NaN.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, core.ErrDataUnavailable):
		return &AppError{Code: CodeDataUnavailable, Message: err.Error(), Cause: err}
	case errors.Is(err, core.ErrNoData):
		return &AppError{Code: CodeNoDataFound, Message: err.Error(), Cause: err}
	case errors.Is(err, core.ErrInsufficientData):
		return &AppError{Code: CodeInsufficientData, Message: err.Error(), Cause: err}
	case errors.Is(err, core.ErrModelFit):
		return &AppError{Code: CodeModelFitFailed, Message: err.Error(), Cause: err}
	case errors.Is(err, core.ErrInvalidBreakpoints):
		return &AppError{Code: CodeInvalidParameter, Message: err.Error(), Cause: err}
	case errors.Is(err, core.ErrInvalidMatrix), errors.Is(err, core.ErrInvalidPerturbation):
		return &AppError{Code: CodeInvalidMatrix, Message: err.Error(), Cause: err}
	case errors.Is(err, core.ErrUnreachableTarget):
		return &AppError{Code: CodeUnreachable, Message: err.Error(), Cause: err}
	}
	return &AppError{Code: CodeInternalError, Message: err.Error(), Cause: err}
}
