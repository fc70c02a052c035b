package core

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. Its string value is the status reported
// in a failure envelope.
type Kind string

const (
	KindSpecValidation   Kind = "spec_validation_error"
	KindUnknownTool      Kind = "unknown_tool"
	KindMissingColumn    Kind = "missing_column"
	KindInvalidParameter Kind = "invalid_parameter"
	KindInvalidValue     Kind = "invalid_value"
	KindUpstreamFetch    Kind = "upstream_fetch_error"
	KindTimeout          Kind = "timeout"
	KindInternal         Kind = "internal_error"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Op      string // where it happened, e.g. "export Person/person_age"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Kind sentinels for errors.Is.
var (
	ErrSpecValidation   = &Error{Kind: KindSpecValidation}
	ErrUnknownTool      = &Error{Kind: KindUnknownTool}
	ErrMissingColumn    = &Error{Kind: KindMissingColumn}
	ErrInvalidParameter = &Error{Kind: KindInvalidParameter}
	ErrInvalidValue     = &Error{Kind: KindInvalidValue}
	ErrUpstreamFetch    = &Error{Kind: KindUpstreamFetch}
	ErrTimeout          = &Error{Kind: KindTimeout}
)

// Errorf builds a classified error.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. It returns nil for a nil err.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// SpecInvalid reports a malformed connector specification.
func SpecInvalid(op, format string, args ...any) *Error {
	return Errorf(KindSpecValidation, op, format, args...)
}

// UnknownTool reports a transform name missing from the registry.
func UnknownTool(name string) *Error {
	return Errorf(KindUnknownTool, "", "unknown tool %q", name)
}

// MissingColumn reports a referenced column absent from the current table.
func MissingColumn(op, column string) *Error {
	return Errorf(KindMissingColumn, op, "column not found: %q", column)
}

// InvalidParameter reports a parameter outside its declared domain.
func InvalidParameter(op, format string, args ...any) *Error {
	return Errorf(KindInvalidParameter, op, format, args...)
}

// InvalidValue reports a cell value a transform cannot interpret.
func InvalidValue(op, format string, args ...any) *Error {
	return Errorf(KindInvalidValue, op, format, args...)
}

// UpstreamFetch wraps a failed remote call.
func UpstreamFetch(op string, err error) *Error {
	return Wrap(KindUpstreamFetch, op, err)
}

// KindOf returns the classification of err. Deadline expiry anywhere in the
// chain is reported as a timeout; unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
