package coordinator

import (
	"errors"
	"fmt"
)

// ErrorKind classifies transaction failures.
type ErrorKind string

const (
	// ErrorKindBuildFailed indicates a plan node's build failed and
	// the transaction was discarded.
	ErrorKindBuildFailed ErrorKind = "build_failed"

	// ErrorKindCancelled indicates the transaction was cancelled
	// before commit and took the discard path.
	ErrorKindCancelled ErrorKind = "cancelled"

	// ErrorKindCommitFailed indicates the commit could not be made
	// durable. The previous database snapshot is intact.
	ErrorKindCommitFailed ErrorKind = "commit_failed"

	// ErrorKindStagingFailed indicates the staging area for buffered
	// artifacts could not be prepared.
	ErrorKindStagingFailed ErrorKind = "staging_failed"
)

// TransactionError is a classified transaction failure.
type TransactionError struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// TxnID is the failed transaction.
	TxnID string `json:"txn_id,omitempty"`

	// Node is the plan node the failure concerns, if any.
	Node string `json:"node,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Node != "" {
		msg += fmt.Sprintf(" (node=%s)", e.Node)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *TransactionError) Is(target error) bool {
	t, ok := target.(*TransactionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewBuildFailedError creates a build-failure error for a node.
func NewBuildFailedError(node string, err error) *TransactionError {
	return &TransactionError{
		Kind:    ErrorKindBuildFailed,
		Message: "build failed",
		Node:    node,
		Err:     err,
	}
}

// NewCancelledError creates a cancellation error.
func NewCancelledError(err error) *TransactionError {
	return &TransactionError{
		Kind:    ErrorKindCancelled,
		Message: "transaction cancelled before commit",
		Err:     err,
	}
}

// NewCommitFailedError creates a commit-failure error.
func NewCommitFailedError(err error) *TransactionError {
	return &TransactionError{
		Kind:    ErrorKindCommitFailed,
		Message: "commit failed",
		Err:     err,
	}
}

// NewStagingFailedError creates a staging-failure error.
func NewStagingFailedError(message string, err error) *TransactionError {
	return &TransactionError{
		Kind:    ErrorKindStagingFailed,
		Message: message,
		Err:     err,
	}
}

// WithTxn adds transaction context to an error.
func (e *TransactionError) WithTxn(txnID string) *TransactionError {
	e.TxnID = txnID
	return e
}

// IsBuildFailed returns true if the error is a build failure.
func IsBuildFailed(err error) bool {
	var e *TransactionError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindBuildFailed
	}
	return false
}

// IsCancelled returns true if the error is a pre-commit cancellation.
func IsCancelled(err error) bool {
	var e *TransactionError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindCancelled
	}
	return false
}

// IsCommitFailed returns true if the error is a commit failure.
func IsCommitFailed(err error) bool {
	var e *TransactionError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindCommitFailed
	}
	return false
}
