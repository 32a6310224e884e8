package memory

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a backend failure. Callers are expected to retry
// only on KindLockTimeout (and database-busy conditions surfaced as
// KindDatabase with a retryable cause); everything else is terminal for
// the call.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"   // malformed input, rejected before I/O
	KindSecurity    ErrorKind = "security"     // suspicious content or path escape
	KindLockTimeout ErrorKind = "lock_timeout" // transient contention
	KindStorage     ErrorKind = "storage"      // file I/O failure
	KindDatabase    ErrorKind = "database"     // transaction or query failure
)

// Error is the structured failure type crossing the capability boundary.
// No raw low-level fault escapes a backend method.
type Error struct {
	Kind    ErrorKind
	Op      string // operation that failed, e.g. "filestore.save"
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an *Error.
func E(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Ef constructs an *Error with a formatted message and no cause.
func Ef(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err if it is (or wraps) an *Error, and ""
// otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation rejection.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsSecurity reports whether err is a security rejection.
func IsSecurity(err error) bool { return KindOf(err) == KindSecurity }

// IsLockTimeout reports whether err is a lock acquisition timeout.
func IsLockTimeout(err error) bool { return KindOf(err) == KindLockTimeout }
