package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeServiceTimeout:     "Service request timeout",
	CodeServiceUnavailable: "Service temporarily unavailable",
	CodeRateLimitExceeded:  "Rate limit exceeded",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	CodeTransportError:           "Chain provider request failed",
	CodePersistenceError:         "Chain state store operation failed",
	CodeConfigurationUnavailable: "Participation cadence is not available",

	CodeInvalidContractAddress: "Invalid contract address",
	CodeChainStateNotFound:     "No chain state has been reconciled yet",

	CodeRPCConnectionFailed: "Failed to connect to chain RPC endpoint",
	CodeRPCError:            "Chain RPC call failed",
	CodeContractCallFailed:  "Smart contract call failed",

	CodeSchedulerStopped: "Scheduler is stopped",
	CodeShutdownTimeout:  "In-flight reconciliation did not finish within the grace period",

	CodeCircuitOpen: "Circuit breaker is open",
}
