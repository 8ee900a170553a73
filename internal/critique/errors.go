package critique

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Every failed request ends in exactly one kind.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindCaptureFailed       Kind = "capture_failed"
	KindTransportFailed     Kind = "transport_failed"
	KindRemoteServiceFailed Kind = "remote_service_failed"
)

// ErrBusy is the cause attached to an InvalidInput rejection issued while
// another request is still in flight.
var ErrBusy = errors.New("request already in flight")

// Error is the single error surface of the pipeline.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error. cause may be nil.
func NewError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// AsError converts any error into an *Error. Errors that carry no kind are
// treated as transport failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: KindTransportFailed, Message: err.Error(), Cause: err}
}

// KindOf returns the kind carried by err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return AsError(err).Kind
}

// ParseKind maps a wire kind back to a Kind. Unknown values report false.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindInvalidInput, KindCaptureFailed, KindTransportFailed, KindRemoteServiceFailed:
		return k, true
	}
	return "", false
}
