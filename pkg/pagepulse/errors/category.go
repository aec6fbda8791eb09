// Package errors provides the pipeline error taxonomy and recovery helpers.
//
// The package implements a layered error handling approach:
//   - Categorization: classify errors so the orchestrator knows what to do
//   - Retry: handle transient sink/source failures with exponential backoff
//   - Escalation: fatal errors skip retry and demand human attention
package errors

import (
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryRejected indicates a per-record validation rejection.
	// Counted and dropped; never aborts a run.
	CategoryRejected Category = iota

	// CategoryTransient indicates retry will likely help.
	// Examples: sink unavailability, source I/O timeouts.
	CategoryTransient

	// CategoryInvariant indicates an internal contract breach.
	// Examples: an empty page_url reaching the aggregator.
	// Fatal: bypasses retry and escalates immediately.
	CategoryInvariant

	// CategoryConfig indicates missing or invalid run parameters.
	// Fatal: escalates immediately, never retried.
	CategoryConfig
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRejected:
		return "rejected"
	case CategoryTransient:
		return "transient"
	case CategoryInvariant:
		return "invariant"
	case CategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Attempts is the number of attempts that have been made.
	Attempts int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient I/O error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Invariant creates an invariant-violation error.
func Invariant(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryInvariant, context)
}

// Config creates a configuration error.
func Config(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryConfig, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryInvariant // shouldn't happen, fail safe
	}

	// Check for already-categorized errors
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	// Check for per-record rejections
	var rejErr *RejectError
	if errors.As(err, &rejErr) {
		return CategoryRejected
	}

	// Check for sink/source I/O errors
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		return CategoryTransient
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return CategoryTransient
	}

	// Check for timeouts
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	// Unknown errors are fatal (fail safe: a human looks rather than the
	// orchestrator retrying something it does not understand).
	return CategoryInvariant
}

// IsRetryable reports whether the error should drive the retry state machine.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsFatal reports whether the error bypasses retry and escalates immediately.
func IsFatal(err error) bool {
	cat := Categorize(err)
	return cat == CategoryInvariant || cat == CategoryConfig
}

// IsRejection reports whether the error is a per-record rejection.
func IsRejection(err error) bool {
	return Categorize(err) == CategoryRejected
}
