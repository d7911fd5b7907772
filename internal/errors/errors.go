package errors

import (
	"fmt"
	"time"
)

// Error types for the azline system
type ErrorType string

const (
	// Backend errors
	ErrorTypeBackend     ErrorType = "backend"
	ErrorTypeUnavailable ErrorType = "unavailable"

	// Execution errors
	ErrorTypeExec ErrorType = "exec"

	// Result view errors
	ErrorTypeRender ErrorType = "render"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// BackendError represents a failed request to a knowledge backend
type BackendError struct {
	Type        ErrorType
	Request     string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewBackendError creates a new backend error for the named request
func NewBackendError(request string, err error) *BackendError {
	return &BackendError{
		Type:       ErrorTypeBackend,
		Request:    request,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithUnavailable marks the error as caused by a missing tool
func (e *BackendError) WithUnavailable() *BackendError {
	e.Type = ErrorTypeUnavailable
	return e
}

// WithRecoverable marks the error as recoverable
func (e *BackendError) WithRecoverable(recoverable bool) *BackendError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s request failed: %v", e.Type, e.Request, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *BackendError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if the request can be retried
func (e *BackendError) IsRecoverable() bool {
	return e.Recoverable
}

// ExecError represents a command line that ran and failed
type ExecError struct {
	Type       ErrorType
	Line       string
	ExitCode   int
	Underlying error
	Timestamp  time.Time
}

// NewExecError creates a new execution error
func NewExecError(line string, exitCode int, err error) *ExecError {
	return &ExecError{
		Type:       ErrorTypeExec,
		Line:       line,
		ExitCode:   exitCode,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ExecError) Error() string {
	return fmt.Sprintf("command %q exited with code %d: %v", e.Line, e.ExitCode, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ExecError) Unwrap() error {
	return e.Underlying
}

// RenderError represents a failure to update the result view
type RenderError struct {
	Type       ErrorType
	View       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewRenderError creates a new render error
func NewRenderError(op, view string, err error) *RenderError {
	return &RenderError{
		Type:       ErrorTypeRender,
		View:       view,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s failed for view %s: %v", e.Operation, e.View, e.Underlying)
}

// Unwrap returns the underlying error
func (e *RenderError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// ErrOrNil returns nil when no errors were collected
func (e *MultiError) ErrOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}
