// internal/syncerr/errors.go
package syncerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a sync failure. The orchestrator and retry loops branch on it, never
// on error strings.
type Kind string

const (
	// KindConfiguration — missing credentials or ids. Fatal, surfaced immediately, no retry.
	KindConfiguration Kind = "configuration"
	// KindTransient — network failure or 429. Retried per backoff, then surfaced.
	KindTransient Kind = "transient"
	// KindSchemaDrift — the remote rejected a select-option label it no longer knows.
	// Repaired once automatically, else surfaced.
	KindSchemaDrift Kind = "schema_drift"
	// KindValidation — malformed remote response (e.g. a missing id field). Fatal for
	// the attempt, not retried.
	KindValidation Kind = "validation"
	// KindRemoteRejection — any other 4xx/5xx. Fatal, not retried.
	KindRemoteRejection Kind = "remote_rejection"
)

// Error is the one error type both external clients raise.
type Error struct {
	Kind       Kind
	Op         string // e.g. "board.create_item", "crm.create_lead"
	Message    string
	StatusCode int
	RetryAfter time.Duration // rate-limit hint, zero when absent
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Op, e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// KindOf extracts the Kind from err, or KindRemoteRejection for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindRemoteRejection
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func IsSchemaDrift(err error) bool {
	return KindOf(err) == KindSchemaDrift
}

// RetryAfterOf returns the rate-limit hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var se *Error
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// Truncate bounds a stored error message so failed attempts cannot grow persisted rows
// without limit.
func Truncate(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	return msg[:max] + "…"
}
