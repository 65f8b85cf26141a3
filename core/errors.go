package core

import "fmt"

// ErrorClass categorises a failure for the purposes of retry policy and
// monitor reporting (spec §7).
type ErrorClass int

const (
	// ErrorClassUser covers failures caused by the request itself: a
	// missing file, a permission the caller doesn't have, a duplicate
	// holding entry. These fail fast with no retry.
	ErrorClassUser ErrorClass = iota
	// ErrorClassTransient covers failures expected to clear on their own:
	// a dropped broker connection, an object-store 5xx, a DB deadlock.
	// These are retried with back-off up to max_retries.
	ErrorClassTransient
	// ErrorClassFatal covers failures that mean this consumer cannot make
	// progress at all: bad credentials, a corrupt schema. The consumer
	// halts rather than requeue.
	ErrorClassFatal
	// ErrorClassProtocol covers malformed envelopes or unrecognised
	// states. These are dropped, never retried.
	ErrorClassProtocol
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassUser:
		return "user"
	case ErrorClassTransient:
		return "transient"
	case ErrorClassFatal:
		return "fatal"
	case ErrorClassProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this class should be requeued with
// back-off.
func (c ErrorClass) Retryable() bool {
	return c == ErrorClassTransient
}

// ClassifiedError pairs an error with the class under which it should be
// handled. Stage implementations return this (or wrap a plain error,
// defaulting to ErrorClassTransient via Classify) so that callers never have
// to re-derive policy from an error string.
type ClassifiedError struct {
	Class   ErrorClass
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewUserError wraps err (if any) as a non-retryable user-class failure.
func NewUserError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: ErrorClassUser, Message: message, Err: err}
}

// NewTransientError wraps err as a retryable transient-system failure.
func NewTransientError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewFatalError wraps err as a fatal failure that should halt the consumer.
func NewFatalError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: ErrorClassFatal, Message: message, Err: err}
}

// NewProtocolError wraps err as a malformed-envelope/unknown-state failure.
func NewProtocolError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: ErrorClassProtocol, Message: message, Err: err}
}

// Classify extracts the ErrorClass carried by err, if any, defaulting
// unrecognised errors to ErrorClassTransient so that unexpected failures
// are retried rather than silently dropped.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassTransient
	}
	var ce *ClassifiedError
	if asClassified(err, &ce) {
		return ce.Class
	}
	return ErrorClassTransient
}

func asClassified(err error, target **ClassifiedError) bool {
	for err != nil {
		if ce, ok := err.(*ClassifiedError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
