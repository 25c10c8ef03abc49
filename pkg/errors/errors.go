package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Schema errors
	ErrUnknownReadingType = errors.New("unknown reading type")
	ErrMissingColumn      = errors.New("missing required column")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")

	// Data quality errors
	ErrMissingCalibration = errors.New("missing calibration record")
	ErrZeroScale          = errors.New("calibration scale is zero")
	ErrValueOutOfRange    = errors.New("value out of configured range")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrStorageReadFailed       = errors.New("storage read failed")
	ErrDataNotFound            = errors.New("data not found")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing configuration")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeSchema        ErrorType = "schema"
	ErrorTypeQuality       ErrorType = "quality"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewSchemaViolation creates a schema violation error. Schema violations halt
// the run when strict schema checking is enabled.
func NewSchemaViolation(code, message string) *AppError {
	return NewAppError(ErrorTypeSchema, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// IsSchemaViolation reports whether err is (or wraps) a schema violation.
func IsSchemaViolation(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeSchema
	}
	return false
}

// Error codes for different error scenarios
const (
	// Schema error codes
	CodeUnknownReadingType = "UNKNOWN_READING_TYPE"
	CodeMissingColumn      = "MISSING_COLUMN"
	CodeInvalidTimestamp   = "INVALID_TIMESTAMP"
	CodeNonFiniteValue     = "NON_FINITE_VALUE"
	CodeSchemaCheckFailed  = "SCHEMA_CHECK_FAILED"

	// Data quality warning codes
	CodeMissingCalibration = "MISSING_CALIBRATION"
	CodeZeroScale          = "ZERO_SCALE"
	CodeOutOfRange         = "OUT_OF_RANGE"
	CodeCoverageGap        = "COVERAGE_GAP"

	// Storage error codes
	CodeStorageError     = "STORAGE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"

	// Configuration error codes
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeMissingConfig      = "MISSING_CONFIG"
	CodeInvalidConfigValue = "INVALID_CONFIG_VALUE"
	CodeConfigReadFailed   = "CONFIG_READ_FAILED"
	CodeConfigParseFailed  = "CONFIG_PARSE_FAILED"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
