package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Message != "configuration is invalid" {
			t.Errorf("Message = %q, want %q", err.Message, "configuration is invalid")
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Details == nil {
			t.Error("Details map is nil")
		}
		if err.Context == nil {
			t.Error("Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets correct retryable defaults", func(t *testing.T) {
		retryableErr := NewError(ErrCodeConnectionTimeout, "connection timed out")
		if !retryableErr.Retryable {
			t.Error("ConnectionTimeout should be retryable by default")
		}

		nonRetryableErr := NewError(ErrCodeInvalidConfig, "config invalid")
		if nonRetryableErr.Retryable {
			t.Error("InvalidConfig should not be retryable by default")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeMissingConfig, CategoryConfiguration},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeConnectionFailed, CategoryConnection},
		{ErrCodeNetworkError, CategoryConnection},
		{ErrCodeKeyNotFound, CategoryStorage},
		{ErrCodeStorageWrite, CategoryStorage},
		{ErrCodeAccessDenied, CategoryStorage},
		{ErrCodeMetadataCorrupt, CategoryStorage},
		{ErrCodeResourceExhausted, CategoryResource},
		{ErrCodeCacheFull, CategoryResource},
		{ErrCodeLimitExceeded, CategoryResource},
		{ErrCodeNotInitialized, CategoryState},
		{ErrCodeInvalidState, CategoryState},
		{ErrCodeShutdownInProgress, CategoryState},
		{ErrCodeOperationTimeout, CategoryOperation},
		{ErrCodeValidationFailed, CategoryOperation},
		{ErrCodeRetryExhausted, CategoryOperation},
		{ErrCodeInternalError, CategoryInternal},
		{ErrCodeUnknownError, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			result := GetCategory(tt.code)
			if result != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, result, tt.expected)
			}
		})
	}
}

func TestIsRetryableByDefault(t *testing.T) {
	t.Parallel()

	retryableCodes := []ErrorCode{
		ErrCodeConnectionTimeout,
		ErrCodeConnectionFailed,
		ErrCodeNetworkError,
		ErrCodeOperationTimeout,
		ErrCodeResourceExhausted,
		ErrCodeInternalError,
	}

	nonRetryableCodes := []ErrorCode{
		ErrCodeInvalidConfig,
		ErrCodeKeyNotFound,
		ErrCodeValidationFailed,
		ErrCodeMetadataCorrupt,
		ErrCodeInvalidState,
	}

	for _, code := range retryableCodes {
		t.Run(string(code)+" should be retryable", func(t *testing.T) {
			if !IsRetryableByDefault(code) {
				t.Errorf("%v should be retryable by default", code)
			}
		})
	}

	for _, code := range nonRetryableCodes {
		t.Run(string(code)+" should not be retryable", func(t *testing.T) {
			if IsRetryableByDefault(code) {
				t.Errorf("%v should not be retryable by default", code)
			}
		})
	}
}

func TestCacheTuneError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *CacheTuneError
		want string
	}{
		{
			name: "with component and operation",
			err: &CacheTuneError{
				Code:      ErrCodeKeyNotFound,
				Component: "store",
				Operation: "get",
				Message:   "key does not exist",
			},
			want: "[store:get] KEY_NOT_FOUND: key does not exist",
		},
		{
			name: "with component only",
			err: &CacheTuneError{
				Code:      ErrCodeInvalidConfig,
				Component: "config",
				Message:   "invalid value",
			},
			want: "[config] INVALID_CONFIG: invalid value",
		},
		{
			name: "minimal error",
			err: &CacheTuneError{
				Code:    ErrCodeUnknownError,
				Message: "something went wrong",
			},
			want: "UNKNOWN_ERROR: something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.err.Error()
			if result != tt.want {
				t.Errorf("Error() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestCacheTuneError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying cause")
	err := &CacheTuneError{
		Code:    ErrCodeInternalError,
		Message: "wrapper",
		Cause:   cause,
	}

	unwrapped := err.Unwrap()
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestCacheTuneError_Is(t *testing.T) {
	t.Parallel()

	err1 := &CacheTuneError{Code: ErrCodeKeyNotFound, Message: "not found"}
	err2 := &CacheTuneError{Code: ErrCodeKeyNotFound, Message: "different message"}
	err3 := &CacheTuneError{Code: ErrCodeInvalidConfig, Message: "invalid"}
	stdErr := errors.New("standard error")

	if !err1.Is(err2) {
		t.Error("errors with same code should match with Is()")
	}

	if err1.Is(err3) {
		t.Error("errors with different codes should not match with Is()")
	}

	if err1.Is(stdErr) {
		t.Error("CacheTuneError should not match standard error with Is()")
	}
}

func TestCacheTuneError_String(t *testing.T) {
	t.Parallel()

	err := &CacheTuneError{
		Code:      ErrCodeOperationTimeout,
		Category:  CategoryOperation,
		Message:   "operation took too long",
		Component: "store",
		Operation: "fetch",
		Retryable: true,
		Details:   map[string]interface{}{"duration": 30},
		Cause:     errors.New("network timeout"),
	}

	result := err.String()

	expectedParts := []string{
		"Code=OPERATION_TIMEOUT",
		"Category=operation",
		`Message="operation took too long"`,
		"Component=store",
		"Operation=fetch",
		"Retryable=true",
		"Details=",
		"Cause=",
	}

	for _, part := range expectedParts {
		if !strings.Contains(result, part) {
			t.Errorf("String() missing expected part: %q\nGot: %s", part, result)
		}
	}
}

func TestCacheTuneError_JSON(t *testing.T) {
	t.Parallel()

	err := &CacheTuneError{
		Code:      ErrCodeInvalidConfig,
		Category:  CategoryConfiguration,
		Message:   "invalid setting",
		Component: "config",
		Retryable: false,
	}

	jsonStr := err.JSON()

	var parsed map[string]interface{}
	if parseErr := json.Unmarshal([]byte(jsonStr), &parsed); parseErr != nil {
		t.Fatalf("JSON() returned invalid JSON: %v\nJSON: %s", parseErr, jsonStr)
	}

	if parsed["code"] != "INVALID_CONFIG" {
		t.Errorf("JSON code = %v, want INVALID_CONFIG", parsed["code"])
	}
	if parsed["message"] != "invalid setting" {
		t.Errorf("JSON message = %v, want 'invalid setting'", parsed["message"])
	}
	if parsed["retryable"] != false {
		t.Errorf("JSON retryable = %v, want false", parsed["retryable"])
	}
}

func TestErrorBuilders(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := NewError(ErrCodeConnectionFailed, "redis unreachable").
		WithComponent("store").
		WithOperation("connect").
		WithContext("addr", "localhost:6379").
		WithDetail("attempt", 3).
		WithCause(cause)

	if err.Component != "store" {
		t.Errorf("Component = %q, want store", err.Component)
	}
	if err.Operation != "connect" {
		t.Errorf("Operation = %q, want connect", err.Operation)
	}
	if err.Context["addr"] != "localhost:6379" {
		t.Errorf("Context[addr] = %q, want localhost:6379", err.Context["addr"])
	}
	if err.Details["attempt"] != 3 {
		t.Errorf("Details[attempt] = %v, want 3", err.Details["attempt"])
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
}

func TestWithStack(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeInternalError, "boom").WithStack()
	if err.Stack == "" {
		t.Error("WithStack() left Stack empty")
	}
}

func TestCaptureStack(t *testing.T) {
	t.Parallel()

	stack := CaptureStack(0)

	if stack == "" {
		t.Error("CaptureStack() returned empty string")
	}

	if !strings.Contains(stack, ":") {
		t.Error("Stack trace should contain file:line format")
	}

	if strings.Contains(stack, "errors.go") {
		t.Error("Stack trace should not include errors.go frames")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	if !IsRetryable(NewError(ErrCodeConnectionFailed, "down")) {
		t.Error("Expected connection failure to be retryable")
	}
	if IsRetryable(NewError(ErrCodeValidationFailed, "bad input")) {
		t.Error("Expected validation failure to not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("Expected plain error to not be retryable")
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	if code := CodeOf(NewError(ErrCodeKeyNotFound, "missing")); code != ErrCodeKeyNotFound {
		t.Errorf("CodeOf = %v, want %v", code, ErrCodeKeyNotFound)
	}
	if code := CodeOf(errors.New("plain")); code != ErrCodeUnknownError {
		t.Errorf("CodeOf(plain) = %v, want %v", code, ErrCodeUnknownError)
	}
}

func TestErrorCodeCategories(t *testing.T) {
	t.Parallel()

	allCodes := []ErrorCode{
		ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeConfigValidation, ErrCodeConfigLoad,
		ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeNetworkError,
		ErrCodeKeyNotFound, ErrCodeStorageWrite, ErrCodeStorageRead, ErrCodeStorageList,
		ErrCodeAccessDenied, ErrCodeMetadataCorrupt,
		ErrCodeResourceExhausted, ErrCodeCacheFull, ErrCodeLimitExceeded,
		ErrCodeNotInitialized, ErrCodeInvalidState, ErrCodeShutdownInProgress, ErrCodeComponentStopped,
		ErrCodeOperationTimeout, ErrCodeOperationCanceled, ErrCodeOperationFailed,
		ErrCodeRetryExhausted, ErrCodeValidationFailed,
		ErrCodeInternalError, ErrCodeUnknownError,
	}

	for _, code := range allCodes {
		category := GetCategory(code)
		if category == "" {
			t.Errorf("GetCategory(%v) returned empty category", code)
		}
	}
}
