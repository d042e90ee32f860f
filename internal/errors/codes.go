package errors

// Error codes for categorizing worker errors. These line up with the
// error taxonomy: startup, compilation, guest trap, outbound call,
// and cache I/O.
const (
	CodeStartup           = "STARTUP_ERROR"
	CodeCompilation       = "COMPILATION_ERROR"
	CodeTrap              = "TRAP"
	CodeContractViolation = "CONTRACT_VIOLATION"
	CodeOutboundCall      = "OUTBOUND_CALL_ERROR"
	CodeCache             = "CACHE_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL"
)

// IsRetryable reports whether an error with the given code represents
// a transient condition worth retrying from outside the worker.
func IsRetryable(code string) bool {
	switch code {
	case CodeOutboundCall, CodeCache:
		return true
	default:
		return false
	}
}
