// Package errors provides a structured error system for CacheTune with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for CacheTune operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Connection Errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Storage Backend Errors
	ErrCodeKeyNotFound     ErrorCode = "KEY_NOT_FOUND"
	ErrCodeStorageWrite    ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageRead     ErrorCode = "STORAGE_READ"
	ErrCodeStorageList     ErrorCode = "STORAGE_LIST"
	ErrCodeAccessDenied    ErrorCode = "ACCESS_DENIED"
	ErrCodeMetadataCorrupt ErrorCode = "METADATA_CORRUPT"

	// Resource Management Errors
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	ErrCodeCacheFull         ErrorCode = "CACHE_FULL"
	ErrCodeLimitExceeded     ErrorCode = "LIMIT_EXCEEDED"

	// State Management Errors
	ErrCodeNotInitialized     ErrorCode = "NOT_INITIALIZED"
	ErrCodeInvalidState       ErrorCode = "INVALID_STATE"
	ErrCodeShutdownInProgress ErrorCode = "SHUTDOWN_IN_PROGRESS"
	ErrCodeComponentStopped   ErrorCode = "COMPONENT_STOPPED"

	// Operation Errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeOperationFailed   ErrorCode = "OPERATION_FAILED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryResource      ErrorCategory = "resource"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheTuneError represents a structured error with context and metadata.
type CacheTuneError struct {
	// Core error information
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`

	// Error handling hints
	Retryable bool `json:"retryable"`

	// Debug information
	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *CacheTuneError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *CacheTuneError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *CacheTuneError) Is(target error) bool {
	if ctErr, ok := target.(*CacheTuneError); ok {
		return e.Code == ctErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *CacheTuneError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}

	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}

	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("CacheTuneError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *CacheTuneError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new CacheTune error with default values.
func NewError(code ErrorCode, message string) *CacheTuneError {
	return &CacheTuneError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "MISSING_CONFIG") ||
		strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "CONNECTION_") || strings.HasPrefix(codeStr, "NETWORK_"):
		return CategoryConnection
	case strings.HasPrefix(codeStr, "KEY_") || strings.HasPrefix(codeStr, "STORAGE_") ||
		strings.HasPrefix(codeStr, "ACCESS_") || strings.HasPrefix(codeStr, "METADATA_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "RESOURCE_") || strings.HasPrefix(codeStr, "CACHE_") ||
		strings.HasPrefix(codeStr, "LIMIT_"):
		return CategoryResource
	case strings.HasPrefix(codeStr, "NOT_INITIALIZED") || strings.HasPrefix(codeStr, "INVALID_STATE") ||
		strings.HasPrefix(codeStr, "SHUTDOWN_") || strings.HasPrefix(codeStr, "COMPONENT_"):
		return CategoryState
	case strings.HasPrefix(codeStr, "OPERATION_") || strings.HasPrefix(codeStr, "RETRY_") ||
		strings.HasPrefix(codeStr, "VALIDATION_"):
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeConnectionTimeout: true,
		ErrCodeConnectionFailed:  true,
		ErrCodeNetworkError:      true,
		ErrCodeOperationTimeout:  true,
		ErrCodeResourceExhausted: true,
		ErrCodeInternalError:     true,
	}
	return retryableCodes[code]
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:]) // +2 to skip this function and the caller
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") { // Skip frames from this file
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *CacheTuneError) WithContext(key, value string) *CacheTuneError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *CacheTuneError) WithDetail(key string, value interface{}) *CacheTuneError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *CacheTuneError) WithComponent(component string) *CacheTuneError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *CacheTuneError) WithOperation(operation string) *CacheTuneError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *CacheTuneError) WithCause(cause error) *CacheTuneError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *CacheTuneError) WithStack() *CacheTuneError {
	e.Stack = CaptureStack(2)
	return e
}

// IsRetryable reports whether err carries a retryable CacheTune error code.
func IsRetryable(err error) bool {
	if ctErr, ok := err.(*CacheTuneError); ok {
		return ctErr.Retryable
	}
	return false
}

// CodeOf returns the error code of err, or ErrCodeUnknownError when err is
// not a CacheTuneError.
func CodeOf(err error) ErrorCode {
	if ctErr, ok := err.(*CacheTuneError); ok {
		return ctErr.Code
	}
	return ErrCodeUnknownError
}
