// Package errors provides a lightweight structured error type (PipelineError)
// for category-based classification and retry semantics across stage runners,
// HTTP handlers, and the CLI.
package errors

import (
	"fmt"
)

// ErrorCategory classifies a PipelineError. The set mirrors the error taxonomy
// the stage runners translate adapter failures into.
type ErrorCategory string

const (
	// User-facing input errors
	CategoryInvalidInput ErrorCategory = "invalid_input"
	CategoryNotFound     ErrorCategory = "not_found"

	// Upstream failures a retry can plausibly fix (HTTP 5xx, network, DB lock)
	CategoryTransient ErrorCategory = "transient"

	// An AI call returned unusable output; the dimension is nulled and the job continues
	CategoryQuality ErrorCategory = "quality"

	// Backup write failure, filesystem full, required config missing
	CategoryFatal ErrorCategory = "fatal"

	CategoryTimeout   ErrorCategory = "timeout"
	CategoryCancelled ErrorCategory = "cancelled"

	// Infrastructure errors outside the runner taxonomy
	CategoryConfig   ErrorCategory = "config"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// PipelineError is a structured error with category, retryability, and context
type PipelineError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for PipelineError
type ContextFields map[string]any

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new PipelineError
func New(category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new PipelineError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Retryable creates a new retryable PipelineError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable PipelineError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if pe, ok := err.(*PipelineError); ok {
		return pe.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if pe, ok := err.(*PipelineError); ok {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if it is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	if pe, ok := err.(*PipelineError); ok {
		return pe.Category
	}
	return CategoryInternal
}

// AsPipeline attempts to convert an error to a PipelineError.
func AsPipeline(err error) (*PipelineError, bool) {
	pe, ok := err.(*PipelineError)
	return pe, ok
}
