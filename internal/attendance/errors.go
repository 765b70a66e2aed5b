package attendance

import (
	"errors"
	"fmt"
)

// Kind classifies service failures. Values are stable and exposed to API clients.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindNoFace           Kind = "no_face"
	KindExtractionFailed Kind = "extraction_failed"
	KindStorageFailed    Kind = "storage_failed"
)

// Error is a service failure with a client-safe message. Err holds the
// underlying cause and is only meant for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of a service error, storage_failed for anything else.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindStorageFailed
}

// PublicMessage returns the message that can be shown to clients.
func PublicMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}
