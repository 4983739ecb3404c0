package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Resource errors
const (
	// ErrCodeNotFound indicates the requested model or session does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeNotReady indicates the model exists but cannot serve sessions.
	ErrCodeNotReady ErrorCode = "NOT_READY"
	// ErrCodeConflict indicates a conflict with the current lifecycle state.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Validation errors
const (
	// ErrCodeConfigInvalid indicates a model configuration is incomplete or inconsistent.
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ErrCodeInvalidInput indicates the request body or message is malformed.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Authentication errors
const (
	// ErrCodeUnauthorized indicates the request is unauthorized.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimited indicates the caller exceeded its request budget.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Backend errors
const (
	// ErrCodeBackendUnavailable indicates the inference engine failed to initialize or respond.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// ErrCodeTransientInference indicates a single inference call failed.
	ErrCodeTransientInference ErrorCode = "TRANSIENT_INFERENCE_FAILURE"
	// ErrCodeSessionTerminated indicates the remote recognition session closed.
	ErrCodeSessionTerminated ErrorCode = "SESSION_TERMINATED"
	// ErrCodeCredentialDecrypt indicates stored credentials could not be decrypted.
	ErrCodeCredentialDecrypt ErrorCode = "CREDENTIAL_DECRYPT_FAILURE"
	// ErrCodeTimeout indicates an operation took too long.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeStoreFailure indicates the persistent store rejected an operation.
	ErrCodeStoreFailure ErrorCode = "STORE_FAILURE"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeBackendUnavailable: true,
	ErrCodeTransientInference: true,
	ErrCodeStoreFailure:       true,
	ErrCodeTimeout:            true,
	ErrCodeInternal:           true,
	ErrCodeRateLimited:        true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
