// Package errors attaches stable codes to errors crossing the CLI, storage
// and HTTP boundaries.
package errors

import (
	stderrors "errors"
	"fmt"

	"xelimit/domain/core"
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

// Wrap adds context, keeping the code of any AppError in the chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    GetCode(err),
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

// WithCode sets the code of err, keeping its message.
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr == err {
		return &AppError{Code: code, Message: appErr.Message, Cause: appErr.Cause}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the code of the outermost AppError in the chain, or
// CodeInternalError when there is none.
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// Error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeTemplateNotFound = "TEMPLATE_NOT_FOUND"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeFitFailed        = "FIT_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
)

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// DatabaseError reports a failed storage operation.
func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

// ValidationError reports struct tag validation failures.
func ValidationError(message string, cause error) *AppError {
	return &AppError{Code: CodeValidationError, Message: message, Cause: cause}
}

// NotFound names the missing resource. cause is usually a core sentinel.
func NotFound(resource string, cause error) *AppError {
	return &AppError{Code: CodeNotFound, Message: resource + " not found", Cause: cause}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// Classify wraps a domain error with the code matching its sentinel, so
// adapters and the CLI can report a stable code. Errors that already carry
// a code keep it.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return Wrap(err, message)
	}
	code := CodeInternalError
	switch {
	case stderrors.Is(err, core.ErrTemplateNotFound):
		code = CodeTemplateNotFound
	case core.IsConfigurationError(err):
		code = CodeConfigInvalid
	case core.IsNotFoundError(err):
		code = CodeNotFound
	case stderrors.Is(err, core.ErrFitFailed), stderrors.Is(err, core.ErrLimitNotBracketed):
		code = CodeFitFailed
	}
	return &AppError{Code: code, Message: message, Cause: err}
}
