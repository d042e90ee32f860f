// Package errors provides the worker's typed error taxonomy: startup
// failures, compilation failures, guest traps, contract violations,
// outbound call failures, and cache I/O errors. Everything recoverable
// from the guest's perspective is surfaced as data (a Call Result
// Err), never as one of these types; these types exist for the host's
// own propagation policy (log-and-exit, trap-and-discard, or
// log-and-continue).
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for quick errors.Is checks.
var (
	ErrFunctionNotFound = errors.New("no such function")
	ErrResultAlreadySet = errors.New("result already set")
	ErrAllocationFailed = errors.New("guest allocation failed")
)

// BaseError is the foundation every typed error in this package embeds.
type BaseError struct {
	code    string
	message string
	cause   error
}

func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error's category code.
func (e *BaseError) Code() string { return e.code }

// Unwrap returns the wrapped cause, if any.
func (e *BaseError) Unwrap() error { return e.cause }

// StartupError reports a fatal misconfiguration or bind failure
// during process startup.
type StartupError struct {
	*BaseError
}

func NewStartupError(message string, cause error) *StartupError {
	return &StartupError{&BaseError{code: CodeStartup, message: message, cause: cause}}
}

// CompileError reports that a specific function's WASM source failed
// to compile. Fatal in this implementation.
type CompileError struct {
	*BaseError
	FunctionName string
}

func NewCompileError(functionName, message string, cause error) *CompileError {
	return &CompileError{
		BaseError:    &BaseError{code: CodeCompilation, message: message, cause: cause},
		FunctionName: functionName,
	}
}

// TrapError reports a guest trap during entry-point execution, or a
// host-binding contract violation (which this implementation treats
// identically to a trap). The instance that produced it must be
// discarded, never returned to the pool.
type TrapError struct {
	*BaseError
	InstanceID uint64
}

func NewTrapError(instanceID uint64, message string, cause error) *TrapError {
	return &TrapError{
		BaseError:  &BaseError{code: CodeTrap, message: message, cause: cause},
		InstanceID: instanceID,
	}
}

// ContractViolationError reports a guest violating the host-binding
// contract (double set_result, invalid UTF-8, out-of-bounds
// allocation). Propagated identically to a TrapError.
type ContractViolationError struct {
	*BaseError
	InstanceID uint64
}

func NewContractViolationError(instanceID uint64, message string) *ContractViolationError {
	return &ContractViolationError{
		BaseError:  &BaseError{code: CodeContractViolation, message: message},
		InstanceID: instanceID,
	}
}

// OutboundCallError reports a failed outbound HTTP call made on behalf
// of the guest (ol_ipc.function_call / http_post / http_get). Never
// fails the request from outside; surfaced to the guest as a Call
// Result Err.
type OutboundCallError struct {
	*BaseError
	Target string
}

func NewOutboundCallError(target, message string, cause error) *OutboundCallError {
	return &OutboundCallError{
		BaseError: &BaseError{code: CodeOutboundCall, message: message, cause: cause},
		Target:    target,
	}
}

// CacheError reports a failed artifact cache read or write. Always
// tolerated: caller recompiles and continues.
type CacheError struct {
	*BaseError
	Path string
}

func NewCacheError(path, message string, cause error) *CacheError {
	return &CacheError{
		BaseError: &BaseError{code: CodeCache, message: message, cause: cause},
		Path:      path,
	}
}

// IsTrap reports whether err (or a wrapped cause of it) represents a
// guest trap or contract violation — the instance that produced it
// must be discarded rather than returned to the instance pool.
func IsTrap(err error) bool {
	var trap *TrapError
	var violation *ContractViolationError
	return errors.As(err, &trap) || errors.As(err, &violation)
}

// Wrap annotates err with a message, preserving errors.Is/As chains.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
