// Package errors provides the failure taxonomy for the generation bridge.
// It defines sentinel errors, typed errors for each way a generation request
// can fail, and classification helpers used by the HTTP layer and logging.
//
// # Error Types
//
// Pre-launch errors:
//   - ValidationError: malformed or missing input, rejected before any worker exists
//   - CapacityError: no worker slot became available
//
// Worker errors, in the order the classifier evaluates them:
//   - ProcessStartError: the worker could not be started at all
//   - TimeoutError: the worker exceeded its deadline and was killed
//   - WorkerExitError: the worker started but exited abnormally
//   - OutputParseError: the worker exited cleanly but its stdout was not a JSON object
//   - ApplicationError: the worker exited cleanly and reported a failure itself
//
// # Usage
//
//	err := errors.NewWorkerExitError(1, "boom").WithProvider("openai")
//
//	if errors.Is(err, errors.ErrWorkerExit) { ... }
//
//	var exitErr *errors.WorkerExitError
//	if errors.As(err, &exitErr) { ... }
//
// # Error Classification
//
// Every error carries a severity, a retryable hint and a user-facing flag.
// The bridge never retries on its own; IsRetryable only informs callers.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors caused by the caller or by load.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Request sentinel errors
var (
	// ErrInvalidInput indicates that request validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrPromptRequired indicates a missing or blank prompt.
	ErrPromptRequired = New("prompt required")
	// ErrInvalidProvider indicates a provider that is not registered.
	ErrInvalidProvider = New("invalid provider")
	// ErrInvalidBody indicates a body that is not a JSON object.
	ErrInvalidBody = New("invalid request body")
)

// Worker sentinel errors
var (
	// ErrProcessStart indicates that the worker could not be started.
	ErrProcessStart = New("worker failed to start")
	// ErrWorkerExit indicates that the worker terminated abnormally.
	ErrWorkerExit = New("worker exited abnormally")
	// ErrOutputParse indicates that the worker output was not well-formed.
	ErrOutputParse = New("worker output not parseable")
	// ErrApplication indicates that the worker reported a failure itself.
	ErrApplication = New("worker reported an error")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrCapacity indicates that no worker slot was available.
	ErrCapacity = New("worker capacity exhausted")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BridgeError is the base interface for all bridge errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type BridgeError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the request
	// may succeed if the caller sends it again.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	provider   string
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// Provider returns the provider the failing request was routed to, if known.
func (e *baseError) Provider() string {
	return e.provider
}

// format renders "<kind> [k=v, ...]: message[: cause]".
func (e *baseError) format(kind string, parts ...string) string {
	if e.provider != "" {
		parts = append([]string{fmt.Sprintf("provider=%s", e.provider)}, parts...)
	}
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Request Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input. It is raised before any worker
// is launched.
//
// Example:
//
//	err := errors.NewValidationError("prompt required").WithField("prompt")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Message returns the bare validation message without context.
func (e *ValidationError) Message() string {
	return e.message
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts...)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// CapacityError represents a request that could not obtain a worker slot,
// either because the wait queue was full or because the queue wait expired.
type CapacityError struct {
	baseError
	Limit     int
	Waited    time.Duration
	QueueFull bool
}

// NewCapacityError creates a new CapacityError.
func NewCapacityError(message string, limit int) *CapacityError {
	return &CapacityError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Limit: limit,
	}
}

// WithWaited records how long the request waited for a slot.
func (e *CapacityError) WithWaited(d time.Duration) *CapacityError {
	e.Waited = d
	return e
}

// WithQueueFull marks the rejection as caused by a full wait queue.
func (e *CapacityError) WithQueueFull(full bool) *CapacityError {
	e.QueueFull = full
	return e
}

// WithProvider adds the provider to the error context.
func (e *CapacityError) WithProvider(provider string) *CapacityError {
	e.provider = provider
	return e
}

// WithCause adds a cause to the error.
func (e *CapacityError) WithCause(cause error) *CapacityError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *CapacityError) Error() string {
	parts := []string{fmt.Sprintf("limit=%d", e.Limit)}
	if e.Waited > 0 {
		parts = append(parts, fmt.Sprintf("waited=%s", e.Waited))
	}
	if e.QueueFull {
		parts = append(parts, "queue=full")
	}
	return e.format("capacity error", parts...)
}

// Is checks if this error matches the target.
func (e *CapacityError) Is(target error) bool {
	if _, ok := target.(*CapacityError); ok {
		return true
	}
	if target == ErrCapacity {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Worker Errors
// -----------------------------------------------------------------------------

// ProcessStartError represents a worker that could not be started at all:
// missing binary, permission denied, resource exhaustion, or an unreachable
// remote executor.
//
// Example:
//
//	err := errors.NewProcessStartError("python3", execErr)
type ProcessStartError struct {
	baseError
	Command string
}

// NewProcessStartError creates a new ProcessStartError.
func NewProcessStartError(command string, cause error) *ProcessStartError {
	return &ProcessStartError{
		baseError: baseError{
			message:    fmt.Sprintf("failed to start %s", command),
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: false,
		},
		Command: command,
	}
}

// WithProvider adds the provider to the error context.
func (e *ProcessStartError) WithProvider(provider string) *ProcessStartError {
	e.provider = provider
	return e
}

// Diagnostic returns the underlying start failure message.
func (e *ProcessStartError) Diagnostic() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.message
}

// Error returns the formatted error message.
func (e *ProcessStartError) Error() string {
	return e.format("process start error")
}

// Is checks if this error matches the target.
func (e *ProcessStartError) Is(target error) bool {
	if _, ok := target.(*ProcessStartError); ok {
		return true
	}
	if target == ErrProcessStart {
		return true
	}
	return e.baseError.Is(target)
}

// WorkerExitError represents a worker that started but terminated
// abnormally, with a non-zero exit code or by signal.
type WorkerExitError struct {
	baseError
	ExitCode int
	Signal   string
	Stderr   string
}

// NewWorkerExitError creates a new WorkerExitError from an exit code and the
// worker's accumulated stderr.
func NewWorkerExitError(exitCode int, stderr string) *WorkerExitError {
	return &WorkerExitError{
		baseError: baseError{
			message:    fmt.Sprintf("worker exited with code %d", exitCode),
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

// WithSignal records the signal that terminated the worker.
func (e *WorkerExitError) WithSignal(signal string) *WorkerExitError {
	e.Signal = signal
	if signal != "" {
		e.message = fmt.Sprintf("worker terminated by signal %s", signal)
	}
	return e
}

// WithProvider adds the provider to the error context.
func (e *WorkerExitError) WithProvider(provider string) *WorkerExitError {
	e.provider = provider
	return e
}

// Diagnostic returns stderr when the worker wrote any, otherwise a message
// naming the exit code or signal.
func (e *WorkerExitError) Diagnostic() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return e.message
}

// Error returns the formatted error message.
func (e *WorkerExitError) Error() string {
	return e.format("worker exit error", fmt.Sprintf("code=%d", e.ExitCode))
}

// Is checks if this error matches the target.
func (e *WorkerExitError) Is(target error) bool {
	if _, ok := target.(*WorkerExitError); ok {
		return true
	}
	if target == ErrWorkerExit {
		return true
	}
	return e.baseError.Is(target)
}

// OutputParseError represents a worker that exited cleanly but whose stdout
// was not a JSON object.
type OutputParseError struct {
	baseError
	Raw string
}

// NewOutputParseError creates a new OutputParseError carrying the raw stdout.
func NewOutputParseError(raw string, cause error) *OutputParseError {
	return &OutputParseError{
		baseError: baseError{
			message:    "worker output is not a JSON object",
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
		Raw: raw,
	}
}

// WithProvider adds the provider to the error context.
func (e *OutputParseError) WithProvider(provider string) *OutputParseError {
	e.provider = provider
	return e
}

// Error returns the formatted error message.
func (e *OutputParseError) Error() string {
	return e.format("output parse error")
}

// Is checks if this error matches the target.
func (e *OutputParseError) Is(target error) bool {
	if _, ok := target.(*OutputParseError); ok {
		return true
	}
	if target == ErrOutputParse {
		return true
	}
	return e.baseError.Is(target)
}

// ApplicationError represents a failure the worker reported itself through
// the "error" field of its output, despite exiting cleanly.
type ApplicationError struct {
	baseError
}

// NewApplicationError creates a new ApplicationError with the worker-supplied message.
func NewApplicationError(message string) *ApplicationError {
	return &ApplicationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithRetryable records the worker's hint that the failure is transient.
func (e *ApplicationError) WithRetryable(r bool) *ApplicationError {
	e.retryable = r
	return e
}

// WithProvider adds the provider to the error context.
func (e *ApplicationError) WithProvider(provider string) *ApplicationError {
	e.provider = provider
	return e
}

// Message returns the worker-supplied message.
func (e *ApplicationError) Message() string {
	return e.message
}

// Error returns the formatted error message.
func (e *ApplicationError) Error() string {
	return e.format("application error")
}

// Is checks if this error matches the target.
func (e *ApplicationError) Is(target error) bool {
	if _, ok := target.(*ApplicationError); ok {
		return true
	}
	if target == ErrApplication {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for worker", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for worker (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithProvider adds the provider to the error context.
func (e *TimeoutError) WithProvider(provider string) *TimeoutError {
	e.provider = provider
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed if the caller sends the request again. This checks for:
//   - Errors implementing BridgeError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout or ErrCapacity
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var bridgeErr BridgeError
	if As(err, &bridgeErr) {
		return bridgeErr.IsRetryable()
	}

	if Is(err, ErrTimeout) || Is(err, ErrCapacity) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    respond(err.Error())
//	} else {
//	    respond("An internal error occurred")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var bridgeErr BridgeError
	if As(err, &bridgeErr) {
		return bridgeErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BridgeError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var bridgeErr BridgeError
	if As(err, &bridgeErr) {
		return bridgeErr.Severity()
	}

	return SeverityError
}

// IsWorkerError returns true if the error came from the worker side of the
// bridge (start, timeout, exit, parse, or application failures).
func IsWorkerError(err error) bool {
	if err == nil {
		return false
	}

	var startErr *ProcessStartError
	var exitErr *WorkerExitError
	var parseErr *OutputParseError
	var appErr *ApplicationError
	var timeoutErr *TimeoutError

	return As(err, &startErr) || As(err, &exitErr) || As(err, &parseErr) ||
		As(err, &appErr) || As(err, &timeoutErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to build registry")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
