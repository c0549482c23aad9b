package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
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

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeInputValidation = "INPUT_VALIDATION"
	CodeEmptyContrast   = "EMPTY_CONTRAST"
	CodeFittingFailure  = "FITTING_FAILURE"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Common error constructors

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// InputValidation marks bad input data: missing metadata columns, cells
// without a sample/cluster assignment, sample tables that do not cover the
// dataset. These abort the run before any contrast is built.
func InputValidation(message string) *AppError {
	return New(CodeInputValidation, message)
}

func InputValidationf(format string, args ...interface{}) *AppError {
	return New(CodeInputValidation, fmt.Sprintf(format, args...))
}

// EmptyContrast marks a contrast whose filtered column set is empty after
// outlier removal.
func EmptyContrast(contrast string) *AppError {
	return New(CodeEmptyContrast, fmt.Sprintf("contrast %s has no columns after filtering", contrast))
}

// FittingFailure marks a per-contrast engine failure. The run continues
// with the remaining contrasts.
func FittingFailure(contrast string, cause error) *AppError {
	return &AppError{
		Code:    CodeFittingFailure,
		Message: fmt.Sprintf("model fitting failed for contrast %s", contrast),
		Cause:   cause,
	}
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}
