package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the transport layer can map them to a
// status code without inspecting messages.
type ErrorKind string

const (
	KindBadEncoding            ErrorKind = "bad_encoding"
	KindUnsupportedContentType ErrorKind = "unsupported_content_type"
	KindUnsupportedField       ErrorKind = "unsupported_field"
	KindMissingField           ErrorKind = "missing_field"
	KindInvalidValue           ErrorKind = "invalid_value"
	KindUnknownCharacter       ErrorKind = "unknown_character"
	KindDuplicateUsername      ErrorKind = "duplicate_username"
	KindInvalidTimestampRange  ErrorKind = "invalid_timestamp_range"
	KindBackendUnavailable     ErrorKind = "backend_unavailable"
	KindBackendTimeout         ErrorKind = "backend_timeout"
	KindNotFound               ErrorKind = "not_found"
	KindInvalidCursor          ErrorKind = "invalid_cursor"
	KindUnauthorized           ErrorKind = "unauthorized"
	KindInternal               ErrorKind = "internal"
)

// Error is the structured error shared by every component of the gateway.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %s)", msg, e.Field)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, and on field when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

// WrapError attaches a cause to a new *Error.
func WrapError(kind ErrorKind, field, message string, cause error) *Error {
	return &Error{Kind: kind, Field: field, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	ErrBadEncoding            = &Error{Kind: KindBadEncoding}
	ErrUnsupportedContentType = &Error{Kind: KindUnsupportedContentType}
	ErrUnsupportedField       = &Error{Kind: KindUnsupportedField}
	ErrMissingField           = &Error{Kind: KindMissingField}
	ErrInvalidValue           = &Error{Kind: KindInvalidValue}
	ErrUnknownCharacter       = &Error{Kind: KindUnknownCharacter}
	ErrDuplicateUsername      = &Error{Kind: KindDuplicateUsername}
	ErrInvalidTimestampRange  = &Error{Kind: KindInvalidTimestampRange}
	ErrBackendUnavailable     = &Error{Kind: KindBackendUnavailable}
	ErrBackendTimeout         = &Error{Kind: KindBackendTimeout}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidCursor          = &Error{Kind: KindInvalidCursor}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
)
