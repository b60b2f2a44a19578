// Package errors provides centralized error definitions for the import
// orchestrator. It defines sentinel errors, the two failure kinds a module can
// hit (load and initialization), and classification helpers.
//
// # Error Kinds
//
// Neither kind is fatal. Both are reported and contained at the boundary of a
// single module:
//   - LoadError: the host loader rejected or panicked. The load is abandoned
//     and never retried, but it still counts as a settlement.
//   - InitError: the module's initialization hook returned an error or
//     panicked. Sibling modules and completion counting are unaffected.
//
// Construction-time problems (malformed configuration, invalid request sets)
// are reported as ValidationError values wrapping ErrInvalidConfig or
// ErrInvalidRequest.
//
// # Usage
//
//	err := errors.NewLoadError("./widgets/clock.mjs", cause).WithURI(uri)
//
//	if errors.IsLoadFailure(err) { ... }
//
//	var initErr *errors.InitError
//	if errors.As(err, &initErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
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
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
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
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Loading sentinel errors
var (
	// ErrModuleNotFound indicates that no module is served at a resolved URI.
	ErrModuleNotFound = New("module not found")
	// ErrLoadFailed indicates that the host loader rejected a load.
	ErrLoadFailed = New("module load failed")
	// ErrLoaderPanicked indicates that the host loader panicked during a load.
	ErrLoaderPanicked = New("module loader panicked")
)

// Initialization sentinel errors
var (
	// ErrInitFailed indicates that a module's initialization hook returned an error.
	ErrInitFailed = New("module initialization failed")
	// ErrInitPanicked indicates that a module's initialization hook panicked.
	ErrInitPanicked = New("module initialization panicked")
)

// Input sentinel errors
var (
	// ErrInvalidRequest indicates that a scanned request set is malformed.
	ErrInvalidRequest = New("invalid request")
	// ErrInvalidConfig indicates that a configuration value is malformed.
	ErrInvalidConfig = New("invalid configuration")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// ImportError is the interface shared by the orchestrator's error types.
type ImportError interface {
	error
	Unwrap() error
	Severity() Severity
	// ModuleKey returns the key of the module the error belongs to, if any.
	ModuleKey() string
}

type baseError struct {
	message  string
	key      string
	cause    error
	severity Severity
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) ModuleKey() string  { return e.key }

func (e *baseError) format(kind string, parts []string) string {
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
// LoadError
// -----------------------------------------------------------------------------

// LoadError reports a module whose load was rejected by the host loader.
//
// Example:
//
//	err := errors.NewLoadError("%assets%/chart.mjs", cause).WithURI(uri)
//	fmt.Println(err) // "load error [key=%assets%/chart.mjs, uri=https://...]: module load failed: ..."
type LoadError struct {
	baseError
	URI string
}

// NewLoadError creates a LoadError for the given module key.
func NewLoadError(key string, cause error) *LoadError {
	return &LoadError{
		baseError: baseError{
			message:  ErrLoadFailed.Error(),
			key:      key,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithURI records the resolved URI the load was issued against.
func (e *LoadError) WithURI(uri string) *LoadError {
	e.URI = uri
	return e
}

// Error returns the formatted error message.
func (e *LoadError) Error() string {
	var parts []string
	if e.key != "" {
		parts = append(parts, "key="+e.key)
	}
	if e.URI != "" {
		parts = append(parts, "uri="+e.URI)
	}
	return e.format("load error", parts)
}

// Is reports whether target is ErrLoadFailed or any *LoadError.
func (e *LoadError) Is(target error) bool {
	if target == ErrLoadFailed {
		return true
	}
	if _, ok := target.(*LoadError); ok {
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// InitError
// -----------------------------------------------------------------------------

// InitError reports a module whose initialization hook failed.
type InitError struct {
	baseError
	Name  string
	Panic any
}

// NewInitError creates an InitError for the given module key and display name.
func NewInitError(key, name string, cause error) *InitError {
	return &InitError{
		baseError: baseError{
			message:  ErrInitFailed.Error(),
			key:      key,
			cause:    cause,
			severity: SeverityError,
		},
		Name: name,
	}
}

// NewInitPanicError creates an InitError from a value recovered from a panicking hook.
func NewInitPanicError(key, name string, recovered any) *InitError {
	e := NewInitError(key, name, fmt.Errorf("%w: %v", ErrInitPanicked, recovered))
	e.Panic = recovered
	return e
}

// Error returns the formatted error message.
func (e *InitError) Error() string {
	var parts []string
	if e.key != "" {
		parts = append(parts, "key="+e.key)
	}
	if e.Name != "" {
		parts = append(parts, "module="+e.Name)
	}
	return e.format("init error", parts)
}

// Is reports whether target is ErrInitFailed or any *InitError.
func (e *InitError) Is(target error) bool {
	if target == ErrInitFailed {
		return true
	}
	if _, ok := target.(*InitError); ok {
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents invalid input handed to a constructor or entry point.
type ValidationError struct {
	Field   string
	Value   any
	Message string
	cause   error
}

// NewValidationError creates a ValidationError classified under cause
// (ErrInvalidConfig or ErrInvalidRequest).
func NewValidationError(cause error, field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message, cause: cause}
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.cause, e.Message)
	}
	return fmt.Sprintf("%v: %s: %s (got: %v)", e.cause, e.Field, e.Message, e.Value)
}

// Unwrap returns the classification sentinel.
func (e *ValidationError) Unwrap() error { return e.cause }

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsLoadFailure reports whether err is, or wraps, a load failure.
func IsLoadFailure(err error) bool {
	if err == nil {
		return false
	}
	var loadErr *LoadError
	return As(err, &loadErr) || Is(err, ErrLoadFailed) || Is(err, ErrModuleNotFound)
}

// IsInitFailure reports whether err is, or wraps, an initialization failure.
func IsInitFailure(err error) bool {
	if err == nil {
		return false
	}
	var initErr *InitError
	return As(err, &initErr) || Is(err, ErrInitFailed)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ImportError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var importErr ImportError
	if As(err, &importErr) {
		return importErr.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
