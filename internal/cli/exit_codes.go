package cli

import (
	"errors"
	"fmt"

	"github.com/ariel-frischer/bumpkit/internal/apply"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
)

// Exit codes for the bumpkit CLI.
// These codes support programmatic composition and CI/CD integration.
const (
	// ExitSuccess indicates successful command execution
	ExitSuccess = 0

	// ExitValidationFailed indicates invalid input: changesets, configuration,
	// arguments, or conflicts promoted to failures
	ExitValidationFailed = 1

	// ExitRollbackSucceeded indicates an apply failed and every manifest was restored
	ExitRollbackSucceeded = 2

	// ExitPartialRollback indicates an apply failed and restoring manifests
	// also failed; the backup must be restored by hand
	ExitPartialRollback = 3

	// ExitRuntimeError indicates any other failure (not found, I/O, VCS)
	ExitRuntimeError = 4
)

// ExitError carries an exit code without a message. Commands return it after
// printing their own report.
type ExitError struct {
	Code int
}

// NewExitError creates an ExitError.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCodeFor maps an error returned by Execute onto a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var applyErr *apply.ApplyError
	if errors.As(err, &applyErr) {
		if applyErr.RestoreSucceeded {
			return ExitRollbackSucceeded
		}
		return ExitPartialRollback
	}

	switch clierrors.Classify(err) {
	case clierrors.Argument, clierrors.Configuration, clierrors.Validation, clierrors.Conflict, clierrors.Corruption:
		return ExitValidationFailed
	default:
		return ExitRuntimeError
	}
}
