// Package errs defines the closed set of error kinds surfaced across the
// call-lifecycle engine, so callers can branch on failure category without
// parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a coarse error category shared by every component.
type Kind string

const (
	ConfigInvalid      Kind = "config_invalid"
	LibraryInitFailed  Kind = "library_init_failed"
	TransportFailed    Kind = "transport_failed"
	FileNotFound       Kind = "file_not_found"
	InvalidRange       Kind = "invalid_range"
	CallNotReady       Kind = "call_not_ready"
	NoActiveMedia      Kind = "no_active_media"
	CollaboratorFailed Kind = "collaborator_failed"
	QueueClosed        Kind = "queue_closed"
	Timeout            Kind = "timeout"
)

// Error wraps an underlying cause with a Kind so callers can use errors.As
// to branch on failure category and errors.Unwrap to reach the cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
