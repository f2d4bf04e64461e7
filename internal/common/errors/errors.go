// Package errors provides the standardized error type used to fail pipeline jobs.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeFileAccess    ErrorCode = "FILE_ACCESS_ERROR"
	ErrCodeStorage       ErrorCode = "STORAGE_ERROR"
	ErrCodeArchive       ErrorCode = "ARCHIVE_ERROR"
	ErrCodeMerge         ErrorCode = "MERGE_ERROR"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

// Error returns the text reported to the pipeline, so it carries the
// underlying fault and not only the category.
func (e *StandardError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// WithMetadata attaches a key to the error's metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

func newError(code ErrorCode, message string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

// NewConfigurationError reports bad or missing JSON in the job parameters,
// the templates or the input artifact.
func NewConfigurationError(message string, cause error) *StandardError {
	return newError(ErrCodeConfiguration, message, cause)
}

// NewFileAccessError reports a local read or write fault.
func NewFileAccessError(path string, cause error) *StandardError {
	return newError(ErrCodeFileAccess, "Error accessing file", cause).
		WithMetadata("path", path)
}

// NewStorageError reports a fault while fetching or publishing an artifact.
func NewStorageError(operation string, cause error) *StandardError {
	return newError(ErrCodeStorage, fmt.Sprintf("Error %s artifact", operation), cause).
		WithMetadata("operation", operation)
}

// NewArchiveError reports a fault while building the output archive.
func NewArchiveError(entry string, cause error) *StandardError {
	return newError(ErrCodeArchive, "Error writing zip file", cause).
		WithMetadata("entry", entry)
}

// NewMergeError reports a task definition or container spec that is missing
// a key, or whose values cannot be merged.
func NewMergeError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMerge,
		Message:   "Error merging task definition",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize returns err as a StandardError, classifying anything else as an
// internal error.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err)
}

// ==========================
// 3. Utility Functions
// ==========================

// CodeOf returns the code of err, or INTERNAL_ERROR for unclassified errors.
func CodeOf(err error) ErrorCode {
	return Normalize(err).Code
}

// IsCode reports whether err is a StandardError carrying code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIGURATION"), strings.Contains(codeStr, "MERGE"):
		return "INPUT"
	case strings.Contains(codeStr, "FILE"), strings.Contains(codeStr, "ARCHIVE"):
		return "FILESYSTEM"
	case strings.Contains(codeStr, "STORAGE"):
		return "STORAGE"
	default:
		return "OTHER"
	}
}
