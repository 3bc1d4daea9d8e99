package repo

import (
	"errors"
	"fmt"
)

// ErrorKind classifies repository errors.
type ErrorKind string

const (
	// ErrorKindNotFound means no repository exists with the given name.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindDuplicate means a repository with the name already exists.
	ErrorKindDuplicate ErrorKind = "duplicate"

	// ErrorKindInvalidSpec means the repository specification is unusable.
	ErrorKindInvalidSpec ErrorKind = "invalid_spec"

	// ErrorKindSyncFailed means syncing the repository's recipe tree failed.
	ErrorKindSyncFailed ErrorKind = "sync_failed"
)

// RepoError is the classified error type for repository operations.
type RepoError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Name is the repository name, when known.
	Name string

	// Message describes the failure.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *RepoError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Name != "" {
		msg += fmt.Sprintf(" (repo=%s)", e.Name)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RepoError) Unwrap() error {
	return e.Err
}

// Is enables errors.Is comparison by kind.
func (e *RepoError) Is(target error) bool {
	var t *RepoError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// NewNotFoundError creates an error for a missing repository.
func NewNotFoundError(name string) *RepoError {
	return &RepoError{
		Kind:    ErrorKindNotFound,
		Name:    name,
		Message: "no repository exists with the specified name",
	}
}

// NewDuplicateError creates an error for an already-registered name.
func NewDuplicateError(name string) *RepoError {
	return &RepoError{
		Kind:    ErrorKindDuplicate,
		Name:    name,
		Message: "a repository with this name already exists",
	}
}

// NewInvalidSpecError creates an error for an unusable specification.
func NewInvalidSpecError(name, message string) *RepoError {
	return &RepoError{
		Kind:    ErrorKindInvalidSpec,
		Name:    name,
		Message: message,
	}
}

// NewSyncFailedError creates an error for a failed sync.
func NewSyncFailedError(name string, err error) *RepoError {
	return &RepoError{
		Kind:    ErrorKindSyncFailed,
		Name:    name,
		Message: "failed to sync repository",
		Err:     err,
	}
}

// IsNotFound returns true if the error is a missing-repository error.
func IsNotFound(err error) bool {
	var e *RepoError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindNotFound
	}
	return false
}

// IsDuplicate returns true if the error is a duplicate-name error.
func IsDuplicate(err error) bool {
	var e *RepoError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindDuplicate
	}
	return false
}

// IsSyncFailed returns true if the error is a sync failure.
func IsSyncFailed(err error) bool {
	var e *RepoError
	if errors.As(err, &e) {
		return e.Kind == ErrorKindSyncFailed
	}
	return false
}
