package config

import (
	"errors"
	"fmt"
)

// ErrorKind classifies configuration errors.
type ErrorKind string

const (
	// ErrorKindNoConfigFile means no configuration file exists at the
	// resolved path.
	ErrorKindNoConfigFile ErrorKind = "no_config_file"

	// ErrorKindNoSuchKey means a dotted key does not resolve to a value.
	ErrorKindNoSuchKey ErrorKind = "no_such_key"

	// ErrorKindParseFailed means the configuration file could not be
	// decoded.
	ErrorKindParseFailed ErrorKind = "parse_failed"

	// ErrorKindInvalid means the decoded configuration failed validation.
	ErrorKindInvalid ErrorKind = "invalid"

	// ErrorKindIO means reading or writing the configuration file failed.
	ErrorKindIO ErrorKind = "io"
)

// ConfigError is the classified error type for configuration operations.
type ConfigError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Path is the configuration file path, when known.
	Path string

	// Key is the dotted key involved, when relevant.
	Key string

	// Message describes the failure.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (file=%s)", e.Path)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is enables errors.Is comparison by kind.
func (e *ConfigError) Is(target error) bool {
	var t *ConfigError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// NewNoConfigFileError creates a no_config_file error.
func NewNoConfigFileError(path string) *ConfigError {
	return &ConfigError{
		Kind:    ErrorKindNoConfigFile,
		Path:    path,
		Message: "no configuration file",
	}
}

// NewNoSuchKeyError creates a no_such_key error.
func NewNoSuchKeyError(key string) *ConfigError {
	return &ConfigError{
		Kind:    ErrorKindNoSuchKey,
		Key:     key,
		Message: "no such key",
	}
}

// NewParseError creates a parse_failed error.
func NewParseError(path string, err error) *ConfigError {
	return &ConfigError{
		Kind:    ErrorKindParseFailed,
		Path:    path,
		Message: "failed to parse configuration",
		Err:     err,
	}
}

// NewInvalidError creates an invalid error.
func NewInvalidError(path string, err error) *ConfigError {
	return &ConfigError{
		Kind:    ErrorKindInvalid,
		Path:    path,
		Message: "configuration failed validation",
		Err:     err,
	}
}

// NewIOError creates an io error.
func NewIOError(path string, err error) *ConfigError {
	return &ConfigError{
		Kind:    ErrorKindIO,
		Path:    path,
		Message: "configuration file access failed",
		Err:     err,
	}
}

// IsNoConfigFile reports whether the error is a no_config_file error.
func IsNoConfigFile(err error) bool {
	var e *ConfigError
	return errors.As(err, &e) && e.Kind == ErrorKindNoConfigFile
}

// IsNoSuchKey reports whether the error is a no_such_key error.
func IsNoSuchKey(err error) bool {
	var e *ConfigError
	return errors.As(err, &e) && e.Kind == ErrorKindNoSuchKey
}
