package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Submission intake errors
// 12000-12999: Local execution errors
// 13000-13999: Remote execution errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008
	Canceled            ErrorCode = 10009

	// Store errors (10200-10299)
	StoreError     ErrorCode = 10200
	StoreMiss      ErrorCode = 10201
	StoreSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Submission Intake Errors (11000-11999) ==========

	// Submission (11000-11099)
	SubmissionNotFound   ErrorCode = 11000
	SubmissionNotRunning ErrorCode = 11001
	CodeTooLarge         ErrorCode = 11002
	LanguageNotSupported ErrorCode = 11003
	EmptySource          ErrorCode = 11004
	TooManyTestCases     ErrorCode = 11005

	// Scheduling (11100-11199)
	JudgeQueueFull   ErrorCode = 11100
	JudgeSystemError ErrorCode = 11101

	// ========== Local Execution Errors (12000-12999) ==========

	// Toolchain (12000-12099)
	ToolchainMissing   ErrorCode = 12000
	SandboxSetupFailed ErrorCode = 12001
	CleanupFailed      ErrorCode = 12002

	// Program outcome (12100-12199)
	CompilationError    ErrorCode = 12100
	RuntimeError        ErrorCode = 12101
	TimeLimitExceeded   ErrorCode = 12102
	MemoryLimitExceeded ErrorCode = 12103
	OutputLimitExceeded ErrorCode = 12104

	// ========== Remote Execution Errors (13000-13999) ==========

	RemoteExecFailed     ErrorCode = 13000
	RemoteRuntimeUnknown ErrorCode = 13001
	RemoteCircuitOpen    ErrorCode = 13002
	RemoteDisabled       ErrorCode = 13003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",
	Canceled:            "Request canceled",

	// Store
	StoreError:     "Store operation failed",
	StoreMiss:      "Record not found in store",
	StoreSetFailed: "Failed to write record",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Submission intake
	SubmissionNotFound:   "Submission not found",
	SubmissionNotRunning: "Submission is not running",
	CodeTooLarge:         "Source code is too large",
	LanguageNotSupported: "Programming language not supported",
	EmptySource:          "Source code is empty",
	TooManyTestCases:     "Too many test cases",

	// Scheduling
	JudgeQueueFull:   "Judge queue is full, please try again later",
	JudgeSystemError: "Judge system error",

	// Toolchain
	ToolchainMissing:   "Required toolchain binary not found",
	SandboxSetupFailed: "Failed to prepare execution sandbox",
	CleanupFailed:      "Failed to clean up execution sandbox",

	// Program outcome
	CompilationError:    "Compilation error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	OutputLimitExceeded: "Output limit exceeded",

	// Remote execution
	RemoteExecFailed:     "Remote execution service failed",
	RemoteRuntimeUnknown: "Remote execution service has no runtime for this language",
	RemoteCircuitOpen:    "Remote execution service temporarily disabled",
	RemoteDisabled:       "Remote execution is not configured",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == SubmissionNotFound, c == StoreMiss:
		return 404
	case c == TooManyRequests, c == JudgeQueueFull:
		return 429
	case c == ServiceUnavailable, c == RemoteCircuitOpen:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c >= 11000 && c < 11100: // Intake errors
		return 400
	default:
		return 500
	}
}
