package pkgdb

import (
	"errors"
	"fmt"
)

// ErrorKind classifies database failures.
type ErrorKind string

const (
	// ErrorKindDanglingEdge indicates a commit would leave a
	// dependency edge pointing at a package that is not installed.
	ErrorKindDanglingEdge ErrorKind = "dangling_edge"

	// ErrorKindCommitIOFailure indicates the commit could not be made
	// durable. The previous snapshot is untouched.
	ErrorKindCommitIOFailure ErrorKind = "commit_io_failure"

	// ErrorKindNotFound indicates the requested record does not exist.
	ErrorKindNotFound ErrorKind = "not_found"
)

// StoreError is a classified package database failure.
type StoreError struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Package is the package the failure concerns, if any.
	Package string `json:"package,omitempty"`

	// Edge is the offending dependency target, for dangling edges.
	Edge string `json:"edge,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Package != "" {
		msg += fmt.Sprintf(" (package=%s)", e.Package)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewDanglingEdgeError creates a dangling-edge error for the edge
// from pkg to dep.
func NewDanglingEdgeError(pkg, dep string) *StoreError {
	return &StoreError{
		Kind:    ErrorKindDanglingEdge,
		Message: fmt.Sprintf("dependency edge targets a package that would not be installed: %s -> %s", pkg, dep),
		Package: pkg,
		Edge:    dep,
	}
}

// NewCommitIOError creates a commit-durability error.
func NewCommitIOError(message string, err error) *StoreError {
	return &StoreError{
		Kind:    ErrorKindCommitIOFailure,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a missing-record error.
func NewNotFoundError(pkg string) *StoreError {
	return &StoreError{
		Kind:    ErrorKindNotFound,
		Message: "package not installed",
		Package: pkg,
	}
}

// IsDanglingEdge returns true if the error is a dangling-edge failure.
func IsDanglingEdge(err error) bool {
	var e *StoreError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindDanglingEdge
	}
	return false
}

// IsCommitIOFailure returns true if the error is a commit durability failure.
func IsCommitIOFailure(err error) bool {
	var e *StoreError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindCommitIOFailure
	}
	return false
}

// IsNotFound returns true if the error is a missing-record failure.
func IsNotFound(err error) bool {
	var e *StoreError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindNotFound
	}
	return false
}
