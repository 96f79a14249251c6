package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeTimeout       = "TIMEOUT_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	ErrCodeCancelled     = "CANCELLED"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeExpression    = "EXPRESSION_ERROR"
)

// LoopguardError is the structured error type for all loopguard operations.
type LoopguardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	LoopID  string         `json:"loop_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *LoopguardError) Error() string {
	if e.LoopID != "" {
		return fmt.Sprintf("[%s] loop %s: %s", e.Code, e.LoopID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LoopguardError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LoopguardError.
func NewError(code, message string) *LoopguardError {
	return &LoopguardError{Code: code, Message: message}
}

// NewErrorf creates a new LoopguardError with a formatted message.
func NewErrorf(code, format string, args ...any) *LoopguardError {
	return &LoopguardError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithLoop attaches a loop ID to the error.
func (e *LoopguardError) WithLoop(loopID string) *LoopguardError {
	e.LoopID = loopID
	return e
}

// WithCause attaches an underlying cause.
func (e *LoopguardError) WithCause(err error) *LoopguardError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *LoopguardError) WithDetails(details map[string]any) *LoopguardError {
	e.Details = details
	return e
}

// IsCode reports whether err is a LoopguardError carrying the given code.
func IsCode(err error, code string) bool {
	var le *LoopguardError
	return errors.As(err, &le) && le.Code == code
}
