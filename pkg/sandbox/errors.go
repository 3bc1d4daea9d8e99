// Package sandbox executes build plan nodes inside isolated
// environments and captures their output as installable artifacts.
package sandbox

import (
	"errors"
	"fmt"
)

// ErrorKind classifies build failures. The executor never retries any
// of them; retry policy belongs to the caller.
type ErrorKind string

const (
	// ErrorKindStepFailed indicates a build step exited non-zero.
	ErrorKindStepFailed ErrorKind = "step_failed"

	// ErrorKindTimeout indicates the build exceeded its deadline and
	// its process tree was terminated.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindSetupFailed indicates the isolated environment could
	// not be created or its output could not be captured.
	ErrorKindSetupFailed ErrorKind = "sandbox_setup_failed"
)

// BuildError is a classified build failure with the step and output
// context needed to report exactly what went wrong.
type BuildError struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Package is the package being built, if known.
	Package string `json:"package,omitempty"`

	// Step is the zero-based index of the failed build step.
	Step int `json:"step,omitempty"`

	// ExitCode is the failed step's exit code.
	ExitCode int `json:"exit_code,omitempty"`

	// Output is the captured build log up to the failure.
	Output string `json:"output,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	switch e.Kind {
	case ErrorKindStepFailed:
		return fmt.Sprintf("[%s] step %d exited with code %d (package=%s)",
			e.Kind, e.Step, e.ExitCode, e.Package)
	case ErrorKindTimeout:
		return fmt.Sprintf("[%s] %s (package=%s)", e.Kind, e.Message, e.Package)
	default:
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewStepFailedError creates a step-failure error.
func NewStepFailedError(step, exitCode int, output string) *BuildError {
	return &BuildError{
		Kind:     ErrorKindStepFailed,
		Message:  "build step failed",
		Step:     step,
		ExitCode: exitCode,
		Output:   output,
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(message string) *BuildError {
	return &BuildError{
		Kind:    ErrorKindTimeout,
		Message: message,
	}
}

// NewSetupError creates a sandbox-setup error.
func NewSetupError(message string, err error) *BuildError {
	return &BuildError{
		Kind:    ErrorKindSetupFailed,
		Message: message,
		Err:     err,
	}
}

// WithPackage adds package context to an error.
func (e *BuildError) WithPackage(name string) *BuildError {
	e.Package = name
	return e
}

// IsStepFailed returns true if the error is a step failure.
func IsStepFailed(err error) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindStepFailed
	}
	return false
}

// IsTimeout returns true if the error is a build timeout.
func IsTimeout(err error) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindTimeout
	}
	return false
}

// IsSetupFailed returns true if the error is a sandbox setup failure.
func IsSetupFailed(err error) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindSetupFailed
	}
	return false
}
