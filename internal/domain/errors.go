package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable category of a core failure.
// The set is closed: every error surfaced to the shell carries one of these.
type ErrorKind string

const (
	KindInvalidConfig       ErrorKind = "invalid_config"
	KindNotFound            ErrorKind = "not_found"
	KindInUse               ErrorKind = "in_use"
	KindAlreadyConnected    ErrorKind = "already_connected"
	KindNetworkUnreachable  ErrorKind = "network_unreachable"
	KindAuthRejected        ErrorKind = "auth_rejected"
	KindTimedOut            ErrorKind = "timed_out"
	KindProtocolMismatch    ErrorKind = "protocol_mismatch"
	KindQuerySyntaxError    ErrorKind = "query_syntax_error"
	KindQueryTimeout        ErrorKind = "query_timeout"
	KindConnectionLost      ErrorKind = "connection_lost"
	KindPermissionDenied    ErrorKind = "permission_denied"
	KindSessionNotConnected ErrorKind = "session_not_connected"
	KindOperationInProgress ErrorKind = "operation_in_progress"
	KindStaleSchema         ErrorKind = "stale_schema"
)

// Error wraps a cause with its kind, the operation that failed and the
// connection it concerns.
type Error struct {
	Kind ErrorKind
	Op   string // e.g. "connect", "execute"
	ID   string // connection id, if any
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" [%s]", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrQueryTimeout)
// works regardless of Op, ID or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.ID == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrInvalidConfig       = &Error{Kind: KindInvalidConfig}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInUse               = &Error{Kind: KindInUse}
	ErrAlreadyConnected    = &Error{Kind: KindAlreadyConnected}
	ErrNetworkUnreachable  = &Error{Kind: KindNetworkUnreachable}
	ErrAuthRejected        = &Error{Kind: KindAuthRejected}
	ErrTimedOut            = &Error{Kind: KindTimedOut}
	ErrProtocolMismatch    = &Error{Kind: KindProtocolMismatch}
	ErrQuerySyntax         = &Error{Kind: KindQuerySyntaxError}
	ErrQueryTimeout        = &Error{Kind: KindQueryTimeout}
	ErrConnectionLost      = &Error{Kind: KindConnectionLost}
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
	ErrSessionNotConnected = &Error{Kind: KindSessionNotConnected}
	ErrOperationInProgress = &Error{Kind: KindOperationInProgress}
	ErrStaleSchema         = &Error{Kind: KindStaleSchema}
)

// E builds a kinded error.
func E(kind ErrorKind, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

// Errorf builds a kinded error with a formatted cause.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WithContext stamps op and id onto a kinded error without losing its kind.
// Errors that carry no kind are returned unchanged.
func WithContext(err error, op, id string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	return &Error{Kind: e.Kind, Op: op, ID: id, Err: e.Err}
}
