// Package errors provides the structured error type (GittehError) used across the
// lock, job, cache and repository layers. Every error that crosses the public
// surface carries one of a small set of categories so callers can branch on
// the kind of failure without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the kind of a GittehError.
type ErrorCategory string

const (
	// Call-shape errors, always reported synchronously.
	CategoryInvalidArgument ErrorCategory = "invalid_argument"

	// Native store errors
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryNativeFailure ErrorCategory = "native_failure"

	// Lifetime errors
	CategoryStaleHandle ErrorCategory = "stale_handle"

	// Ambient errors
	CategoryConfig   ErrorCategory = "config"
	CategoryInternal ErrorCategory = "internal"
)

// GittehError is a structured error with category and context.
type GittehError struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for GittehError
type ContextFields map[string]any

// Error implements the error interface
func (e *GittehError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *GittehError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *GittehError) WithContext(key string, value any) *GittehError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new GittehError
func New(category ErrorCategory, message string) *GittehError {
	return &GittehError{
		Category: category,
		Message:  message,
	}
}

// Wrap creates a new GittehError that wraps an existing error
func Wrap(err error, category ErrorCategory, message string) *GittehError {
	return &GittehError{
		Category: category,
		Message:  message,
		Cause:    err,
	}
}

// As extracts the outermost GittehError from an error chain.
func As(err error) (*GittehError, bool) {
	var ge *GittehError
	if stderrors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if ge, ok := As(err); ok {
		return ge.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a GittehError
func GetCategory(err error) ErrorCategory {
	if ge, ok := As(err); ok {
		return ge.Category
	}
	return CategoryInternal
}

// IsNotFound reports whether err is a not_found error.
func IsNotFound(err error) bool { return IsCategory(err, CategoryNotFound) }

// IsStale reports whether err is a stale_handle error.
func IsStale(err error) bool { return IsCategory(err, CategoryStaleHandle) }

// IsInvalidArgument reports whether err is an invalid_argument error.
func IsInvalidArgument(err error) bool { return IsCategory(err, CategoryInvalidArgument) }
