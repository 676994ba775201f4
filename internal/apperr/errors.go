package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and transport mapping
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnavailable
	KindAuthorization
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "service_unavailable"
	case KindAuthorization:
		return "authorization"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error is the error type raised by the KPI core
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == ""
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrUnavailable   = &Error{Kind: KindUnavailable}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrTimeout       = &Error{Kind: KindTimeout}
)

// Validation reports malformed input
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent entity
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %s not found", entity, id)}
}

// Unavailable wraps a failure to reach a backing service
func Unavailable(service string, err error) error {
	return &Error{Kind: KindUnavailable, Msg: service + " unavailable", Err: err}
}

// Timeout reports a deadline exceeded by a soft-cancelled task
func Timeout(task string) error {
	return &Error{Kind: KindTimeout, Msg: task + " timed out"}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
