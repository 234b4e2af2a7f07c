package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Chain synchronization error codes
const (
	// A chain or contract fetch failed or timed out.
	CodeTransportError Code = "TRANSPORT_ERROR"
	// The state store could not be read or written.
	CodePersistenceError Code = "PERSISTENCE_ERROR"
	// A cadence value needed for eligibility is missing.
	CodeConfigurationUnavailable Code = "CONFIGURATION_UNAVAILABLE"

	CodeInvalidContractAddress Code = "INVALID_CONTRACT_ADDRESS"
	CodeChainStateNotFound     Code = "CHAIN_STATE_NOT_FOUND"

	CodeRPCConnectionFailed Code = "RPC_CONNECTION_FAILED"
	CodeRPCError            Code = "RPC_ERROR"
	CodeContractCallFailed  Code = "CONTRACT_CALL_FAILED"

	CodeSchedulerStopped Code = "SCHEDULER_STOPPED"
	CodeShutdownTimeout  Code = "SHUTDOWN_TIMEOUT"

	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
