// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions.
var (
	ErrNoRecords    = errors.New("no records to encode")
	ErrEmptyPayload = errors.New("empty payload")
	ErrSourceClosed = errors.New("source is closed")
)

// ConfigurationError represents an invalid or missing run parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: field=%s: %s", e.Field, e.Reason)
}

// AuthenticationError represents missing or rejected source credentials.
type AuthenticationError struct {
	Source string
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication error: source=%s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication error: source=%s: %s", e.Source, e.Reason)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// UnsupportedTypeError represents a datatype filter outside the supported set.
type UnsupportedTypeError struct {
	Datatype  string
	Supported []string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported datatype %q (supported: %s)",
		e.Datatype, strings.Join(e.Supported, ", "))
}

// DecodeError represents a malformed input payload for one file.
type DecodeError struct {
	Filename string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: file=%s: %v", e.Filename, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// WriteError represents a serialization or filesystem failure for one file.
type WriteError struct {
	Filename  string
	Operation string
	Path      string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error: file=%s operation=%s path=%s: %v",
		e.Filename, e.Operation, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Kind returns a short label for the error class, suitable for metrics labels.
func Kind(err error) string {
	var (
		cfgErr    *ConfigurationError
		authErr   *AuthenticationError
		typeErr   *UnsupportedTypeError
		decodeErr *DecodeError
		writeErr  *WriteError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &authErr):
		return "authentication"
	case errors.As(err, &typeErr):
		return "unsupported_type"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &writeErr):
		return "write"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// IsFatal reports whether err must abort a run before any file is converted.
func IsFatal(err error) bool {
	var (
		cfgErr  *ConfigurationError
		authErr *AuthenticationError
		typeErr *UnsupportedTypeError
	)
	return errors.As(err, &cfgErr) || errors.As(err, &authErr) || errors.As(err, &typeErr)
}
