package mirrorm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/mirrorm/dialect/sql/sqlerr"
)

// Standard sentinel errors for the error taxonomy.
var (
	// ErrConfiguration is returned when a binding is incomplete or invalid.
	ErrConfiguration = errors.New("mirrorm: invalid configuration")

	// ErrValidation is returned when the input of a row operation is unusable.
	ErrValidation = errors.New("mirrorm: validation failed")

	// ErrConnection is returned when a backend handle cannot be established.
	ErrConnection = errors.New("mirrorm: connection failed")

	// ErrExecution is returned when a single backend statement failed.
	ErrExecution = errors.New("mirrorm: execution failed")

	// ErrRecovery is returned when a write succeeded but its row could not be read back.
	ErrRecovery = errors.New("mirrorm: record recovery failed")

	// ErrMirror is returned when one or more shadows failed after the primary succeeded.
	ErrMirror = errors.New("mirrorm: mirroring incomplete")
)

// ConfigurationError reports a missing table name, primary connection or
// another binding problem. It is always returned before any I/O.
type ConfigurationError struct {
	Op  string // Operation that was attempted (e.g. "create", "bind").
	Msg string
}

// Error returns the error string.
func (e *ConfigurationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("mirrorm: %s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("mirrorm: %s", e.Msg)
}

// Is reports whether the target error matches ErrConfiguration.
func (e *ConfigurationError) Is(err error) bool {
	return err == ErrConfiguration
}

// NewConfigurationError returns a new ConfigurationError.
func NewConfigurationError(op, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// ValidationError reports unusable input: no fields left for a create or
// update, a missing primary-key value, or an invalid column identifier.
type ValidationError struct {
	Op    string
	Field string // Optional: the offending field.
	Msg   string
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("mirrorm: %s: field %q: %s", e.Op, e.Field, e.Msg)
	}
	return fmt.Sprintf("mirrorm: %s: %s", e.Op, e.Msg)
}

// Is reports whether the target error matches ErrValidation.
func (e *ValidationError) Is(err error) bool {
	return err == ErrValidation
}

// NewValidationError returns a new ValidationError.
func NewValidationError(op, field, msg string) *ValidationError {
	return &ValidationError{Op: op, Field: field, Msg: msg}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// ConnectionError wraps a failure to open or ping a backend.
type ConnectionError struct {
	Backend string // Backend identity, e.g. "localhost:5432@app".
	Err     error
}

// Error returns the error string.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mirrorm: connect %s: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrConnection.
func (e *ConnectionError) Is(err error) bool {
	return err == ErrConnection
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// ExecutionError wraps a statement failure. The statement's transaction on
// that backend has been rolled back when this error is returned.
type ExecutionError struct {
	Backend string
	Query   string
	Err     error
}

// Error returns the error string.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("mirrorm: exec on %s: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrExecution.
func (e *ExecutionError) Is(err error) bool {
	return err == ErrExecution
}

// Constraint returns the kind of constraint the backend rejected the
// statement for ("unique", "foreign_key", "check"), or "" if none.
func (e *ExecutionError) Constraint() string {
	return sqlerr.Kind(e.Err)
}

// NewExecutionError returns a new ExecutionError.
func NewExecutionError(backend, query string, err error) *ExecutionError {
	return &ExecutionError{Backend: backend, Query: query, Err: err}
}

// IsExecutionError returns true if the error is an ExecutionError.
func IsExecutionError(err error) bool {
	return errors.Is(err, ErrExecution)
}

// RecoveryError reports a write that apparently succeeded but whose
// resulting row could not be fetched to build the Record.
type RecoveryError struct {
	Backend string
	Table   string
	Key     any // Generated or known primary-key value, nil if lost.
	Msg     string
}

// Error returns the error string.
func (e *RecoveryError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("mirrorm: recover %s row (key=%v) on %s: %s", e.Table, e.Key, e.Backend, e.Msg)
	}
	return fmt.Sprintf("mirrorm: recover %s row on %s: %s", e.Table, e.Backend, e.Msg)
}

// Is reports whether the target error matches ErrRecovery.
func (e *RecoveryError) Is(err error) bool {
	return err == ErrRecovery
}

// NewRecoveryError returns a new RecoveryError.
func NewRecoveryError(backend, table string, key any, msg string) *RecoveryError {
	return &RecoveryError{Backend: backend, Table: table, Key: key, Msg: msg}
}

// IsRecoveryError returns true if the error is a RecoveryError.
func IsRecoveryError(err error) bool {
	return errors.Is(err, ErrRecovery)
}

// ShadowFailure is the error one shadow backend returned during mirroring.
type ShadowFailure struct {
	Shadow string
	Err    error
}

// MirrorError is returned after the primary write has been committed and
// one or more shadows failed to apply it. The primary's effect is not undone.
// The shadow errors are only reachable through Failures, so a MirrorError
// never matches the classes that mean the call itself aborted.
type MirrorError struct {
	Op       string // Mirrored operation (e.g. "create", "update").
	ID       string // Correlation id of the mirrored call.
	Failures []ShadowFailure
}

// Error returns the error string.
func (e *MirrorError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mirrorm: %s failed on %d shadow(s):", e.Op, len(e.Failures))
	for i, f := range e.Failures {
		fmt.Fprintf(&sb, "\n  [%d] %s: %v", i+1, f.Shadow, f.Err)
	}
	return sb.String()
}

// Is reports whether the target error matches ErrMirror.
func (e *MirrorError) Is(err error) bool {
	return err == ErrMirror
}

// Shadows returns the identities of the failing shadows, in binding order.
func (e *MirrorError) Shadows() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Shadow
	}
	return names
}

// IsMirrorError returns true if the error is a MirrorError.
func IsMirrorError(err error) bool {
	var e *MirrorError
	return errors.As(err, &e)
}

// AsMirrorError returns the MirrorError in err's chain, if any.
func AsMirrorError(err error) (*MirrorError, bool) {
	var e *MirrorError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
