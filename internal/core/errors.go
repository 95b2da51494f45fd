package core

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures. Callers map kinds to transport status codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindUnauthorized
	KindInvalidTransition
	KindValidation
	KindConflict
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("concurrent modification")
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindUnauthorized:
		return ErrUnauthorized
	case KindInvalidTransition:
		return ErrInvalidTransition
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	}
	return nil
}

// Error is a classified workflow error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

func Unauthorized(op, format string, args ...any) *Error {
	return newError(KindUnauthorized, op, format, args...)
}

func InvalidTransition(op, format string, args ...any) *Error {
	return newError(KindInvalidTransition, op, format, args...)
}

func Conflict(op, format string, args ...any) *Error {
	return newError(KindConflict, op, format, args...)
}

// Invalid wraps a field validation error.
func Invalid(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: "invalid request", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
