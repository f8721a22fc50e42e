package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error type for evaluation operations.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed input, such as an empty execution id
	// or an interaction with a missing endpoint. Always surfaced to the caller.
	ErrCodeValidation ErrorCode = "VALIDATION"
	// ErrCodeTimeout indicates a bounded operation exceeded its time budget.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeProviderUnavailable indicates no judge provider could be resolved.
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	// ErrCodePartialResult indicates one or more tiers did not produce a result.
	ErrCodePartialResult ErrorCode = "PARTIAL_RESULT"
	// ErrCodeNotFound indicates the requested execution or record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// EvalError represents a structured error for evaluation operations.
type EvalError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EvalError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *EvalError) WithContext(key string, value any) *EvalError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Validation creates a validation error.
func Validation(format string, args ...any) *EvalError {
	return &EvalError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Timeout creates a timeout error.
func Timeout(msg string, cause error) *EvalError {
	return &EvalError{Code: ErrCodeTimeout, Message: msg, Cause: cause}
}

// ProviderUnavailable creates a provider unavailable error.
func ProviderUnavailable(msg string) *EvalError {
	return &EvalError{Code: ErrCodeProviderUnavailable, Message: msg}
}

// PartialResult creates a partial result error listing the missing tiers.
func PartialResult(missing []string) *EvalError {
	return &EvalError{
		Code:    ErrCodePartialResult,
		Message: fmt.Sprintf("missing tier results: %v", missing),
		Context: map[string]any{"missing": missing},
	}
}

// NotFound creates a not found error.
func NotFound(kind, id string) *EvalError {
	return &EvalError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", kind, id)}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *EvalError {
	return &EvalError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *EvalError {
	return &EvalError{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether any error in err's chain is an EvalError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var evalErr *EvalError
	if stderrors.As(err, &evalErr) {
		return evalErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an EvalError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var evalErr *EvalError
	if stderrors.As(err, &evalErr) {
		return evalErr.Code
	}
	return defaultCode
}
