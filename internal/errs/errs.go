// Package errs defines the error taxonomy shared by every outward-facing
// component (source client, downloader, repo, notifier) so that callers can
// branch on Kind without inspecting upstream error strings. See spec.md §7.
package errs

import (
	"fmt"

	stderrors "errors"

	"github.com/pkg/errors"
)

// Kind classifies an error for recovery and user-visibility purposes.
type Kind string

const (
	Config      Kind = "config"
	Db          Kind = "db"
	Auth        Kind = "auth"
	RateLimited Kind = "rate_limited"
	Upstream    Kind = "upstream"
	Transport   Kind = "transport"
	ParseInput  Kind = "parse_input"
	Permission  Kind = "permission"
	PartialSend Kind = "partial_send"
)

// Error is a classified, wrapped error. Cause is kept for logging (the full
// chain); Message is the only thing ever allowed to reach a chat reply, per
// the security invariant in spec.md §7.
type Error struct {
	Kind    Kind
	Cause   error
	Message string // generic, user-safe phrase
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause with pkg/errors (to retain a stack trace for logs) and
// classifies it under kind.
func New(kind Kind, cause error, userMessage string) *Error {
	return &Error{Kind: kind, Cause: errors.WithStack(cause), Message: userMessage}
}

// Wrap annotates cause with a context message before classifying it.
func Wrap(kind Kind, cause error, context, userMessage string) *Error {
	return &Error{Kind: kind, Cause: errors.Wrap(cause, context), Message: userMessage}
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// UserMessage returns the generic chat-facing phrase for err, never the raw
// cause. Unclassified errors get a blanket "operation failed".
func UserMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "operation failed"
}
