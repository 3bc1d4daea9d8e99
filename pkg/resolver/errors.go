// Package resolver turns a recipe store, an installed-package snapshot,
// and a request into an ordered, conflict-free build plan.
package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies resolution failures. None of them are retried:
// they indicate the request or recipe set itself is infeasible.
type ErrorKind string

const (
	// ErrorKindUnsatisfiable indicates the combined constraint set has
	// no consistent assignment.
	ErrorKindUnsatisfiable ErrorKind = "unsatisfiable"

	// ErrorKindUnknownPackage indicates a requested or depended-on
	// package does not exist in the recipe store.
	ErrorKindUnknownPackage ErrorKind = "unknown_package"

	// ErrorKindCyclicDependency indicates the chosen recipes form a
	// dependency cycle.
	ErrorKindCyclicDependency ErrorKind = "cyclic_dependency"
)

// ResolutionError is a classified resolution failure with enough
// context to report which package or constraint was at fault.
type ResolutionError struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Package is the package name at fault, if applicable.
	Package string `json:"package,omitempty"`

	// Constraints describes the conflicting constraint set for
	// unsatisfiable failures.
	Constraints []string `json:"constraints,omitempty"`

	// Cycle is the dependency cycle path for cyclic failures.
	Cycle []string `json:"cycle,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Kind, e.Message)
	if e.Package != "" {
		fmt.Fprintf(&sb, " (package=%s)", e.Package)
	}
	if len(e.Constraints) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(e.Constraints, "; "))
	}
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(e.Cycle, " -> "))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *ResolutionError) Is(target error) bool {
	t, ok := target.(*ResolutionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewUnsatisfiableError creates an unsatisfiable resolution error.
func NewUnsatisfiableError(message string) *ResolutionError {
	return &ResolutionError{
		Kind:    ErrorKindUnsatisfiable,
		Message: message,
	}
}

// NewUnknownPackageError creates an unknown-package resolution error.
func NewUnknownPackageError(name string) *ResolutionError {
	return &ResolutionError{
		Kind:    ErrorKindUnknownPackage,
		Message: "package not found in recipe store",
		Package: name,
	}
}

// NewCyclicDependencyError creates a cyclic-dependency resolution error.
func NewCyclicDependencyError(cycle []string) *ResolutionError {
	return &ResolutionError{
		Kind:    ErrorKindCyclicDependency,
		Message: "dependency cycle detected",
		Cycle:   cycle,
	}
}

// WithPackage adds package context to an error.
func (e *ResolutionError) WithPackage(name string) *ResolutionError {
	e.Package = name
	return e
}

// WithConstraint appends one conflicting constraint description.
func (e *ResolutionError) WithConstraint(desc string) *ResolutionError {
	e.Constraints = append(e.Constraints, desc)
	return e
}

// IsUnsatisfiable returns true if the error is an unsatisfiable failure.
func IsUnsatisfiable(err error) bool {
	var e *ResolutionError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindUnsatisfiable
	}
	return false
}

// IsUnknownPackage returns true if the error is an unknown-package failure.
func IsUnknownPackage(err error) bool {
	var e *ResolutionError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindUnknownPackage
	}
	return false
}

// IsCyclicDependency returns true if the error is a cyclic-dependency failure.
func IsCyclicDependency(err error) bool {
	var e *ResolutionError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindCyclicDependency
	}
	return false
}
