// Package errors consolidates error definitions for the entire project.
//
// This package provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Contextual error types carrying measurement/range/line information
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Range errors
	ErrInvalidRange = errors.New("invalid time range")
	ErrInvalidDate  = errors.New("invalid date")

	// Extraction errors
	ErrStreamTruncated = errors.New("query stream truncated")
	ErrQueryFailed     = errors.New("query failed")
	ErrMalformedResult = errors.New("malformed query result")

	// Codec errors
	ErrParse         = errors.New("line protocol parse error")
	ErrCorruptBackup = errors.New("corrupt backup")
	ErrEmptyFieldSet = errors.New("point has no fields")

	// Load errors
	ErrWriteRejected = errors.New("write rejected by target")

	// Transport errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrAuthFailed       = errors.New("authentication failed")

	// Backup file errors
	ErrBackupDirMissing = errors.New("backup directory does not exist")
	ErrNothingToRestore = errors.New("nothing to restore")
	ErrNotConfirmed     = errors.New("restore not confirmed")

	// Run control
	ErrStopped = errors.New("stop requested")

	// Validation
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// ============================================================================
// Category helpers
// ============================================================================

// IsFatalForMeasurement reports whether err aborts the current measurement
// but should not abort the remaining measurements in the run.
func IsFatalForMeasurement(err error) bool {
	return errors.Is(err, ErrStreamTruncated) ||
		errors.Is(err, ErrCorruptBackup) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrWriteRejected)
}

// IsFatalForRun reports whether err should abort the whole run.
func IsFatalForRun(err error) bool {
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// ============================================================================
// Contextual error types
// ============================================================================

// MeasurementError wraps an error with the measurement it occurred in plus
// enough position information for the operator to re-run the failed part.
// Line is 1-based and zero when not applicable; Chunk is 1-based and zero
// when not applicable; Range is the half-open time predicate text, empty
// when not applicable.
type MeasurementError struct {
	Measurement string
	Range       string
	Line        int
	Chunk       int
	Err         error
}

// Error implements the error interface.
func (e *MeasurementError) Error() string {
	msg := fmt.Sprintf("measurement %q", e.Measurement)
	if e.Range != "" {
		msg += fmt.Sprintf(" range [%s]", e.Range)
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	if e.Chunk > 0 {
		msg += fmt.Sprintf(" chunk %d", e.Chunk)
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *MeasurementError) Unwrap() error {
	return e.Err
}

// ParseError describes a malformed line-protocol input.
type ParseError struct {
	Offset int    // byte offset into the line where parsing failed
	Reason string // human-readable reason
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrParse.Error(), e.Offset, e.Reason)
}

// Unwrap allows errors.Is(err, ErrParse).
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// RejectionError describes a batch rejected by the target write interface.
type RejectionError struct {
	Status int    // HTTP status code
	Body   string // response body, truncated
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrWriteRejected.Error(), e.Status, e.Body)
}

// Unwrap allows errors.Is(err, ErrWriteRejected).
func (e *RejectionError) Unwrap() error {
	return ErrWriteRejected
}

// ============================================================================
// Wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}
