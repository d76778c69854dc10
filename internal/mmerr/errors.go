// Package mmerr defines the error taxonomy from §7: Transient, RateLimited,
// Protocol, Invariant, Auth, and Fatal. Components return these typed errors
// at their boundaries; the supervisor and callers dispatch on them with
// errors.As instead of string matching or exception-style control flow
// (Design Note 9).
package mmerr

import (
	"errors"
	"fmt"
	"time"
)

// Class is the taxonomy category of an error.
type Class string

const (
	ClassTransient   Class = "transient"   // network I/O, 5xx, timeouts — retry with backoff
	ClassRateLimited Class = "rate_limited" // 429 or exchange-specific — respect Retry-After
	ClassProtocol    Class = "protocol"    // sequence gap, malformed message — reconnect/resync
	ClassInvariant   Class = "invariant"   // negative size, crossed book, stale data
	ClassAuth        Class = "auth"        // 401/403 — halt trading, alert, keep feed
	ClassFatal       Class = "fatal"       // signing oracle down, bad config — sweep then exit
)

// Error is the common typed error every component boundary returns.
type Error struct {
	Class Class
	Op    string // component/operation that produced the error
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Class)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is report a match for any *Error target of the same Class,
// so a class check can pass e.g. &mmerr.Error{Class: mmerr.ClassTransient}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Class == e.Class
}

func New(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

func Transient(op string, err error) *Error { return New(ClassTransient, op, err) }
func Protocol(op string, err error) *Error  { return New(ClassProtocol, op, err) }
func Invariant(op string, err error) *Error { return New(ClassInvariant, op, err) }
func Auth(op string, err error) *Error      { return New(ClassAuth, op, err) }
func Fatal(op string, err error) *Error     { return New(ClassFatal, op, err) }

// RateLimitedError carries the venue's advertised Retry-After alongside the
// rate_limited-class *Error it wraps.
type RateLimitedError struct {
	Err        *Error
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return e.Err.Error() }

func (e *RateLimitedError) Unwrap() error { return e.Err }

func NewRateLimited(op string, retryAfter time.Duration, err error) *RateLimitedError {
	return &RateLimitedError{Err: New(ClassRateLimited, op, err), RetryAfter: retryAfter}
}

// ClassOf extracts the taxonomy class of err, if it (transitively) wraps an
// *Error. Returns ("", false) for errors outside the taxonomy.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Err.Class, true
	}
	return "", false
}

// IsRetryable reports whether the supervisor should retry the operation that
// produced err (Transient or RateLimited), as opposed to escalating.
func IsRetryable(err error) bool {
	class, ok := ClassOf(err)
	if !ok {
		return false
	}
	return class == ClassTransient || class == ClassRateLimited
}
