// Package apperr defines the error taxonomy shared by every subsystem.
// Handlers return *Error values; the dispatcher maps them onto the wire.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for dispatch and transport mapping.
type Kind string

const (
	// Transport
	KindParse          Kind = "parse"
	KindMethodNotFound Kind = "method_not_found"
	KindToolNotFound   Kind = "tool_not_found"
	KindInvalidArgs    Kind = "invalid_args"

	// Admission
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindOverloaded   Kind = "overloaded"

	// Resource
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"

	// I/O
	KindStorage    Kind = "storage"
	KindFilesystem Kind = "filesystem"

	// Execution
	KindTimeout  Kind = "timeout"
	KindInternal Kind = "internal"
)

// Error is the structured error carried across handler boundaries.
type Error struct {
	Kind    Kind
	Message string
	Field   string // offending field for invalid_args
	Err     error  // wrapped cause
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %q)", e.Kind, e.Message, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// InvalidArgs reports a schema-validation failure naming the bad field.
func InvalidArgs(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgs, Message: fmt.Sprintf(format, args...), Field: field}
}

// NotFound reports an unknown resource id.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict reports a state conflict such as a dependency or supersession cycle.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// Storage wraps a database failure.
func Storage(err error, format string, args ...interface{}) *Error {
	return Wrap(KindStorage, err, format, args...)
}

// KindOf extracts the Kind from any error, defaulting to internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// JSONRPCCode maps a kind to its JSON-RPC 2.0 error code. Only parse and
// method-not-found surface as protocol errors; everything else is wrapped
// inside the result envelope with isError=true.
func JSONRPCCode(kind Kind) int {
	switch kind {
	case KindParse:
		return -32700
	case KindMethodNotFound:
		return -32601
	case KindInvalidArgs:
		return -32602
	default:
		return -32603
	}
}
