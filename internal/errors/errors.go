// Package errors provides centralized error definitions and error handling
// utilities for workcrew. It defines the orchestration error taxonomy,
// sentinel errors, constructors with context wrapping, and classification
// helpers.
//
// # Error Types
//
// Each failure class of the pipeline has its own type:
//   - ValidationError: malformed input rejected before any execution starts
//   - NotFoundError: a project, team or execution does not exist
//   - TransientBackendError: rate-limit or timeout signal from a backend
//   - TerminalWorkerError: the fallback chain was exhausted for one worker
//   - CheckpointDeniedError: a human rejected a team's output
//   - StoreCorruptionError: a persisted snapshot failed to parse
//   - CapacityExceededError: accumulated context crossed the hard ceiling
//   - ImmutableRecordError: a terminal execution record was about to change
//
// # Usage
//
//	err := errors.NewValidationError("team name is required").WithField("name")
//
//	if errors.Is(err, errors.ErrInvalidInput) { ... }
//
//	var capErr *errors.CapacityExceededError
//	if errors.As(err, &capErr) {
//	    fmt.Println("resume after", capErr.LastGood.TeamName)
//	}
//
// # Error Classification
//
//   - Retryable: transient errors that may succeed on retry
//   - Recoverable: the run halted but persisted progress is intact
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Iron-Ham/workcrew/internal/model"
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
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
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

var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrNotFound indicates a missing resource.
	ErrNotFound = New("not found")
	// ErrCanceled indicates that an operation was canceled cooperatively.
	ErrCanceled = New("operation canceled")
	// ErrChainExhausted indicates every tier of the fallback chain failed.
	ErrChainExhausted = New("fallback chain exhausted")
	// ErrCheckpointDenied indicates a human rejected a checkpoint.
	ErrCheckpointDenied = New("checkpoint denied")
	// ErrCapacityExceeded indicates the context ceiling was crossed.
	ErrCapacityExceeded = New("context capacity exceeded")
	// ErrStoreCorrupted indicates a snapshot could not be parsed.
	ErrStoreCorrupted = New("store data corrupted")
	// ErrImmutable indicates a write to a terminal execution record.
	ErrImmutable = New("record is immutable")
	// ErrPathOutsideRoot indicates a storage location escaping its root.
	ErrPathOutsideRoot = New("path resolves outside allowed root")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// WorkcrewError is the base interface for all workcrew errors.
type WorkcrewError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity  { return e.severity }
func (e *baseError) IsRetryable() bool   { return e.retryable }
func (e *baseError) IsUserFacing() bool  { return e.userFacing }
func (e *baseError) withCause(err error) { e.cause = err }

func formatPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

func (e *baseError) format(prefix string) string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents malformed input, rejected before any side effect.
//
// Example:
//
//	err := errors.NewValidationError("duplicate worker assignment").
//	    WithField("members").WithValue("analyst")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{message: message, severity: SeverityWarning, userFacing: true},
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
	e.withCause(cause)
	return e
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
	return e.format(formatPrefix("validation error", parts))
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

// -----------------------------------------------------------------------------
// NotFoundError
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return target == ErrNotFound || e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// TransientBackendError
// -----------------------------------------------------------------------------

// TransientKind names the transient backend signals.
type TransientKind string

const (
	TransientRateLimited TransientKind = "rate_limited"
	TransientTimeout     TransientKind = "timeout"
)

// TransientBackendError is a rate-limit or timeout signal for one tier.
// It is absorbed by the fallback chain and only surfaces as the cause of a
// TerminalWorkerError.
type TransientBackendError struct {
	baseError
	Kind TransientKind
	Tier string
}

// NewTransientBackendError creates a new TransientBackendError.
func NewTransientBackendError(kind TransientKind, tier string, cause error) *TransientBackendError {
	return &TransientBackendError{
		baseError: baseError{
			message:   string(kind),
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
		Kind: kind,
		Tier: tier,
	}
}

// Error returns the formatted error message.
func (e *TransientBackendError) Error() string {
	return e.format(formatPrefix("transient backend error", []string{"tier=" + e.Tier}))
}

// Is checks if this error matches the target.
func (e *TransientBackendError) Is(target error) bool {
	if _, ok := target.(*TransientBackendError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// TerminalWorkerError
// -----------------------------------------------------------------------------

// TerminalWorkerError reports a worker call that could not produce output.
// It always carries the full attempt history.
type TerminalWorkerError struct {
	baseError
	WorkerID string
	Attempts []model.Attempt
}

// NewTerminalWorkerError creates a new TerminalWorkerError.
func NewTerminalWorkerError(workerID string, attempts []model.Attempt, cause error) *TerminalWorkerError {
	msg := fmt.Sprintf("worker failed after %d attempt(s)", len(attempts))
	return &TerminalWorkerError{
		baseError: baseError{
			message:    msg,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		WorkerID: workerID,
		Attempts: append([]model.Attempt(nil), attempts...),
	}
}

// Error returns the formatted error message.
func (e *TerminalWorkerError) Error() string {
	return e.format(formatPrefix("worker error", []string{"worker=" + e.WorkerID}))
}

// Is checks if this error matches the target.
func (e *TerminalWorkerError) Is(target error) bool {
	if _, ok := target.(*TerminalWorkerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// CheckpointDeniedError
// -----------------------------------------------------------------------------

// CheckpointDeniedError is the normal terminal outcome of a human rejection.
type CheckpointDeniedError struct {
	baseError
	TeamID   string
	Reason   string
	LastGood model.Boundary
}

// NewCheckpointDeniedError creates a new CheckpointDeniedError.
func NewCheckpointDeniedError(teamID, reason string) *CheckpointDeniedError {
	return &CheckpointDeniedError{
		baseError: baseError{
			message:    reason,
			severity:   SeverityInfo,
			userFacing: true,
		},
		TeamID: teamID,
		Reason: reason,
	}
}

// WithLastGood records the last known-good boundary.
func (e *CheckpointDeniedError) WithLastGood(b model.Boundary) *CheckpointDeniedError {
	e.LastGood = b
	return e
}

// Error returns the formatted error message.
func (e *CheckpointDeniedError) Error() string {
	return e.format(formatPrefix("checkpoint denied", []string{"team=" + e.TeamID}))
}

// Is checks if this error matches the target.
func (e *CheckpointDeniedError) Is(target error) bool {
	if _, ok := target.(*CheckpointDeniedError); ok {
		return true
	}
	return target == ErrCheckpointDenied || e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// StoreCorruptionError
// -----------------------------------------------------------------------------

// StoreCorruptionError reports a structurally invalid snapshot. Recovered is
// true when a backup was loaded instead.
type StoreCorruptionError struct {
	baseError
	Path      string
	Recovered bool
}

// NewStoreCorruptionError creates a new StoreCorruptionError.
func NewStoreCorruptionError(path string, recovered bool, cause error) *StoreCorruptionError {
	sev := SeverityCritical
	msg := "snapshot is corrupted and no valid backup exists"
	if recovered {
		sev = SeverityWarning
		msg = "snapshot is corrupted, recovered from backup"
	}
	return &StoreCorruptionError{
		baseError: baseError{message: msg, cause: cause, severity: sev, userFacing: true},
		Path:      path,
		Recovered: recovered,
	}
}

// Error returns the formatted error message.
func (e *StoreCorruptionError) Error() string {
	return e.format(formatPrefix("store corruption", []string{"path=" + e.Path}))
}

// Is checks if this error matches the target.
func (e *StoreCorruptionError) Is(target error) bool {
	if _, ok := target.(*StoreCorruptionError); ok {
		return true
	}
	return target == ErrStoreCorrupted || e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// CapacityExceededError
// -----------------------------------------------------------------------------

// CapacityExceededError halts a run whose accumulated context crossed the
// hard ceiling. Completed team executions stay persisted.
type CapacityExceededError struct {
	baseError
	Used     int
	Ceiling  int
	LastGood model.Boundary
}

// NewCapacityExceededError creates a new CapacityExceededError.
func NewCapacityExceededError(used, ceiling int) *CapacityExceededError {
	return &CapacityExceededError{
		baseError: baseError{
			message:    fmt.Sprintf("context uses %d of %d tokens", used, ceiling),
			severity:   SeverityError,
			userFacing: true,
		},
		Used:    used,
		Ceiling: ceiling,
	}
}

// WithLastGood records the last known-good boundary.
func (e *CapacityExceededError) WithLastGood(b model.Boundary) *CapacityExceededError {
	e.LastGood = b
	return e
}

// Error returns the formatted error message.
func (e *CapacityExceededError) Error() string {
	var parts []string
	if e.LastGood.TeamName != "" {
		parts = append(parts, "last_good="+e.LastGood.TeamName)
	}
	return e.format(formatPrefix("capacity exceeded", parts))
}

// Is checks if this error matches the target.
func (e *CapacityExceededError) Is(target error) bool {
	if _, ok := target.(*CapacityExceededError); ok {
		return true
	}
	return target == ErrCapacityExceeded || e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ImmutableRecordError
// -----------------------------------------------------------------------------

// ImmutableRecordError rejects a change to an execution record that already
// reached a terminal status.
type ImmutableRecordError struct {
	baseError
	RecordType string
	RecordID   string
}

// NewImmutableRecordError creates a new ImmutableRecordError.
func NewImmutableRecordError(recordType, recordID string) *ImmutableRecordError {
	return &ImmutableRecordError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' is terminal", recordType, recordID),
			severity: SeverityError,
		},
		RecordType: recordType,
		RecordID:   recordID,
	}
}

// Is checks if this error matches the target.
func (e *ImmutableRecordError) Is(target error) bool {
	if _, ok := target.(*ImmutableRecordError); ok {
		return true
	}
	return target == ErrImmutable || e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var wcErr WorkcrewError
	if As(err, &wcErr) {
		return wcErr.IsRetryable()
	}
	return false
}

// IsRecoverable returns true if a run halted by err can be resumed from its
// last known-good boundary: capacity overruns, denials and recovered
// corruption.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var corrupt *StoreCorruptionError
	if As(err, &corrupt) {
		return corrupt.Recovered
	}
	return Is(err, ErrCapacityExceeded) || Is(err, ErrCheckpointDenied) || Is(err, ErrCanceled)
}

// IsUserFacing returns true if the error message is safe to display to users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var wcErr WorkcrewError
	if As(err, &wcErr) {
		return wcErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement WorkcrewError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var wcErr WorkcrewError
	if As(err, &wcErr) {
		return wcErr.Severity()
	}
	return SeverityError
}

// Kind returns a stable machine-readable name for the error class, used in
// persisted execution records.
func Kind(err error) string {
	var (
		validation *ValidationError
		terminal   *TerminalWorkerError
		denied     *CheckpointDeniedError
		corrupt    *StoreCorruptionError
		capacity   *CapacityExceededError
		notFound   *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case As(err, &validation):
		return "validation"
	case As(err, &capacity):
		return "capacity_exceeded"
	case As(err, &denied):
		return "checkpoint_denied"
	case As(err, &terminal):
		return "terminal_worker"
	case As(err, &corrupt):
		return "store_corruption"
	case As(err, &notFound):
		return "not_found"
	case Is(err, ErrCanceled):
		return "canceled"
	default:
		return "internal"
	}
}

// Wrap wraps an error with additional context message.
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
