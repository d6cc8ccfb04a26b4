package billing

import (
	"errors"
	"fmt"
)

// Kind classifies billing failures for callers.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindDuplicate  Kind = "duplicate"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindFatal      Kind = "fatal"
	KindInternal   Kind = "internal"
)

// Error is the structured failure surfaced by the billing engine.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("billing: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("billing: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	if t.Message != "" && t.Message != e.Message {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrValidation matches rejected input.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrNotFound matches missing accounts, plans or invoices.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrDuplicate matches reuse of a unique key (recharge reference, invoice period, billing day).
	ErrDuplicate = &Error{Kind: KindDuplicate}
	// ErrTransient matches store/network failures worth retrying.
	ErrTransient = &Error{Kind: KindTransient}
	// ErrConflict matches writes based on a stale balance.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrFatal matches failures that abort a whole batch.
	ErrFatal = &Error{Kind: KindFatal}
	// ErrAccountDisconnected is returned when billing a disconnected account.
	ErrAccountDisconnected = &Error{Kind: KindConflict, Message: "account is disconnected"}
)

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Duplicate builds a duplicate error.
func Duplicate(format string, args ...any) error {
	return &Error{Kind: KindDuplicate, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a retryable cause.
func Transient(message string, err error) error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// Fatal wraps a cause that aborts a batch.
func Fatal(message string, err error) error {
	return &Error{Kind: KindFatal, Message: message, Err: err}
}

// KindOf reports the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
