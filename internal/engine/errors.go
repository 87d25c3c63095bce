package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so callers can render a specific,
// actionable message instead of a generic alert.
type Kind string

const (
	KindNotFound                 Kind = "not_found"
	KindInvalidState             Kind = "invalid_state"
	KindCapacityExceeded         Kind = "capacity_exceeded"
	KindAlreadyEnrolledElsewhere Kind = "already_enrolled_elsewhere"
	KindInsufficientVotes        Kind = "insufficient_votes"
	KindAlreadyFinalized         Kind = "already_finalized"
	KindValidation               Kind = "validation_error"
)

// Error is a structured, user-displayable engine error.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func errNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func errInvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func errCapacityExceeded(format string, args ...any) *Error {
	return &Error{Kind: KindCapacityExceeded, Message: fmt.Sprintf(format, args...)}
}

func errEnrolledElsewhere(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyEnrolledElsewhere, Message: fmt.Sprintf(format, args...)}
}

func errInsufficientVotes(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientVotes, Message: fmt.Sprintf(format, args...)}
}

func errAlreadyFinalized(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyFinalized, Message: fmt.Sprintf(format, args...)}
}

func errValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from an error chain, or "" for non-engine errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
