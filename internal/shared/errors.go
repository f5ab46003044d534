package shared

import (
	"context"
	"errors"
)

// Kind classifies a failure for callers of the posting engine.
type Kind string

const (
	// KindValidation covers unbalanced entries, unusable accounts, closed periods and missing input.
	KindValidation Kind = "validation"
	// KindConcurrency signals a stale version token; the caller must reload and retry.
	KindConcurrency Kind = "concurrency_conflict"
	// KindNotFound means a referenced document, account or period does not exist.
	KindNotFound Kind = "not_found"
	// KindInvariant covers illegal state transitions and negative stock.
	KindInvariant Kind = "domain_invariant"
	// KindInfrastructure covers storage and transaction failures; safe to retry.
	KindInfrastructure Kind = "infrastructure"
)

// Error is a domain error tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// NewError builds a sentinel error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with kind unless it already carries one.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err. Untagged errors are infrastructure failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindInfrastructure
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInfrastructure
}

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")
