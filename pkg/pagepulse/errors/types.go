package errors

import "fmt"

// RejectReason identifies why a record was rejected by the validator.
type RejectReason string

// Rejection reasons.
const (
	ReasonMissingField RejectReason = "missing_field"
	ReasonEmptyKey     RejectReason = "empty_page_url"
	ReasonBadKind      RejectReason = "bad_kind"
	ReasonBadType      RejectReason = "bad_type"
)

// RejectError indicates a single record failed validation.
// Rejections are counted and dropped; they never abort a run.
type RejectError struct {
	Reason RejectReason
	Field  string
	Detail string
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record rejected (%s): field %q %s", e.Reason, e.Field, e.Detail)
	}
	return fmt.Sprintf("record rejected (%s): %s", e.Reason, e.Detail)
}

// SinkError indicates a sink write failed.
type SinkError struct {
	Sink    string
	Op      string
	Wrapped error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %s: %v", e.Sink, e.Op, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *SinkError) Unwrap() error {
	return e.Wrapped
}

// SourceError indicates reading from an input source failed.
type SourceError struct {
	Source  string
	Wrapped error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Wrapped
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}
