// Package errors defines the error taxonomy shared by every stage of a chat turn.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure so callers can map it to user-safe text.
type Kind string

const (
	KindConnectivity      Kind = "connectivity"
	KindUnsupportedEngine Kind = "unsupported_engine"
	KindGenerationTimeout Kind = "generation_timeout"
	KindGenerationFailed  Kind = "generation_failed"
	KindEmptyGeneration   Kind = "empty_generation"
	KindUnsafeStatement   Kind = "unsafe_statement"
	KindExecutionTimeout  Kind = "execution_timeout"
	KindEngineExecution   Kind = "engine_execution"
	KindSchemaUnavailable Kind = "schema_unavailable"
	KindConfig            Kind = "config"
	KindInvalidInput      Kind = "invalid_input"
	KindNotAnswerable     Kind = "not_answerable"
	KindInternal          Kind = "internal"
)

// Error is a structured error carrying a kind, an optional reason code and the
// underlying cause. The cause is for logs only and never reaches callers.
type Error struct {
	Kind    Kind
	Message string
	Reason  string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Reason != "" {
		msg += " [" + e.Reason + "]"
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind (and reason, when the target sets one).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// New creates a new structured error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new structured error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a kind and message.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Wrapf wraps err with a kind and formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Unsafe creates an unsafe-statement rejection with a reason code.
func Unsafe(reason, message string) *Error {
	return &Error{Kind: KindUnsafeStatement, Message: message, Reason: reason}
}

// IsKind reports whether err is a structured error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindInternal for unstructured errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason code of a structured error, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// UserMessage returns text that is safe to show to the end user. Engine and
// provider details are never included.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred."
	}
	switch e.Kind {
	case KindConnectivity:
		return "Failed to connect to database."
	case KindUnsupportedEngine:
		return e.Message
	case KindGenerationTimeout:
		return "SQL generation timed out. Please try again."
	case KindGenerationFailed:
		return "SQL generation failed. Please try again."
	case KindEmptyGeneration:
		return "The model did not return a query. Try rephrasing the question."
	case KindUnsafeStatement:
		return "Generated query was rejected by the safety check: " + e.Message
	case KindExecutionTimeout:
		return "Query timed out."
	case KindEngineExecution:
		return "A database error occurred. Please try again."
	case KindSchemaUnavailable:
		return e.Message
	case KindConfig, KindInvalidInput:
		return e.Message
	case KindNotAnswerable:
		return "The question cannot be answered from this database: " + e.Message
	default:
		return "An unexpected error occurred."
	}
}
