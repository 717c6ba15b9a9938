// Package errors provides the error taxonomy shared by bumpkit packages and the
// structured CLI error used to render failures with remediation guidance.
//
// Domain packages define their own error types and report their category by
// implementing Is against the sentinels declared here, so callers classify
// with errors.Is(err, errors.ErrValidation) without importing every package.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category sentinels. Domain error types match these through Is.
var (
	// ErrValidation marks changeset shape, duplicate packages, unknown
	// environments and invalid versions. Never partially applied.
	ErrValidation = stderrors.New("validation failed")
	// ErrNotFound marks package-by-name, changeset-by-id and file-by-path lookups.
	ErrNotFound = stderrors.New("not found")
	// ErrConflict marks resolution conflicts promoted to failures by policy.
	ErrConflict = stderrors.New("conflict")
	// ErrIO marks filesystem failures.
	ErrIO = stderrors.New("i/o failure")
	// ErrVcs marks failures surfaced by a version control backend.
	ErrVcs = stderrors.New("vcs failure")
	// ErrCorruption marks files that parse but violate invariants.
	ErrCorruption = stderrors.New("corrupted data")
)

// ErrorCategory represents the type of error that occurred.
type ErrorCategory int

const (
	// Argument errors are caused by invalid or missing command arguments.
	Argument ErrorCategory = iota
	// Configuration errors are caused by invalid or missing configuration.
	Configuration
	// Validation errors come from changesets, manifests or versions that fail checks.
	Validation
	// NotFound errors come from lookups by name, id or path.
	NotFound
	// Conflict errors come from resolution conflicts the caller chose to treat as fatal.
	Conflict
	// IO errors come from the filesystem.
	IO
	// Vcs errors come from the version control backend.
	Vcs
	// Corruption errors come from stored data that violates invariants.
	Corruption
	// Runtime errors occur during command execution.
	Runtime
)

// String returns a human-readable name for the error category.
func (c ErrorCategory) String() string {
	switch c {
	case Argument:
		return "Argument Error"
	case Configuration:
		return "Configuration Error"
	case Validation:
		return "Validation Error"
	case NotFound:
		return "Not Found"
	case Conflict:
		return "Conflict"
	case IO:
		return "I/O Error"
	case Vcs:
		return "VCS Error"
	case Corruption:
		return "Corruption"
	case Runtime:
		return "Runtime Error"
	default:
		return "Error"
	}
}

// Classify maps an error onto a category using the sentinels above.
// Errors that match no sentinel are Runtime errors.
func Classify(err error) ErrorCategory {
	if cliErr := AsCLIError(err); cliErr != nil {
		return cliErr.Category
	}
	switch {
	case stderrors.Is(err, ErrValidation):
		return Validation
	case stderrors.Is(err, ErrNotFound):
		return NotFound
	case stderrors.Is(err, ErrConflict):
		return Conflict
	case stderrors.Is(err, ErrCorruption):
		return Corruption
	case stderrors.Is(err, ErrVcs):
		return Vcs
	case stderrors.Is(err, ErrIO):
		return IO
	default:
		return Runtime
	}
}

// CLIError is a structured error with category and remediation guidance.
type CLIError struct {
	// Category is the type of error (Argument, Validation, etc.)
	Category ErrorCategory
	// Message is a human-readable description of what went wrong.
	Message string
	// Remediation is a list of actionable steps to resolve the error.
	Remediation []string
	// Usage shows the correct command syntax (optional, for argument errors).
	Usage string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewArgumentError creates a new argument error with the given message and remediation steps.
func NewArgumentError(message string, remediation ...string) *CLIError {
	return &CLIError{
		Category:    Argument,
		Message:     message,
		Remediation: remediation,
	}
}

// NewArgumentErrorWithUsage creates a new argument error that includes correct usage syntax.
func NewArgumentErrorWithUsage(message, usage string, remediation ...string) *CLIError {
	return &CLIError{
		Category:    Argument,
		Message:     message,
		Usage:       usage,
		Remediation: remediation,
	}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, remediation ...string) *CLIError {
	return &CLIError{
		Category:    Configuration,
		Message:     message,
		Remediation: remediation,
	}
}

// NewRuntimeError creates a new runtime error.
func NewRuntimeError(message string, remediation ...string) *CLIError {
	return &CLIError{
		Category:    Runtime,
		Message:     message,
		Remediation: remediation,
	}
}

// Wrap wraps an existing error with a CLIError, preserving the original message.
// The category is derived from the error itself.
func Wrap(err error, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	return &CLIError{
		Category:    Classify(err),
		Message:     err.Error(),
		Remediation: remediation,
		Err:         err,
	}
}

// WrapWithMessage wraps an error with a custom message and category.
func WrapWithMessage(err error, category ErrorCategory, message string, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	return &CLIError{
		Category:    category,
		Message:     fmt.Sprintf("%s: %v", message, err),
		Remediation: remediation,
		Err:         err,
	}
}

// IsCLIError checks if an error is a CLIError.
func IsCLIError(err error) bool {
	return AsCLIError(err) != nil
}

// AsCLIError attempts to convert an error to a CLIError.
// Returns nil if the error is not a CLIError.
func AsCLIError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	return nil
}
