// Package apperr defines the error kinds surfaced by the core.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal                Kind = "Internal"
	KindInvalidArgument         Kind = "InvalidArgument"
	KindInvalidRepository       Kind = "InvalidRepository"
	KindPathEscape              Kind = "PathEscape"
	KindUpstream                Kind = "UpstreamError"
	KindNotFound                Kind = "NotFound"
	KindIndexNotReady           Kind = "IndexNotReady"
	KindPlannerValidationFailed Kind = "PlannerValidationFailed"
	KindSynthesisFailed         Kind = "SynthesisFailed"
)

// Error carries a kind and a message that is safe to show to callers.
// Status is only set for KindUpstream (the remote HTTP status).
type Error struct {
	Kind   Kind
	Msg    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Msg, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinel comparisons such as
// errors.Is(err, apperr.New(apperr.KindNotFound, "")) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Upstream(status int, format string, args ...any) error {
	return &Error{Kind: KindUpstream, Msg: fmt.Sprintf(format, args...), Status: status}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusOf returns the upstream HTTP status preserved on err, if any.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Message returns the caller-facing message without internal wrapping.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return "internal error"
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
