// Package fault defines the typed failures returned across component
// boundaries. Every rejected operation surfaces as a *Error with a Kind,
// a numeric detail code and a description; anything else that escapes a
// component is reported as a ServiceFailure.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind identifies the class of a failure.
type Kind int

const (
	ServiceFailure Kind = iota
	NotFound
	IdentifierNotUnique
	InvalidRequest
	InvalidSystemMetadata
	NotAuthorized
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case IdentifierNotUnique:
		return "IdentifierNotUnique"
	case InvalidRequest:
		return "InvalidRequest"
	case InvalidSystemMetadata:
		return "InvalidSystemMetadata"
	case NotAuthorized:
		return "NotAuthorized"
	default:
		return "ServiceFailure"
	}
}

// Error is a typed failure.
type Error struct {
	Kind        Kind
	DetailCode  int
	Description string
	Identifier  string // the DID the failure is about, if any
	Operation   string // fully qualified operation name; always set for ServiceFailure
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Kind, e.DetailCode, e.Description)
	if e.Operation != "" {
		msg = fmt.Sprintf("%s: %s", e.Operation, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so errors.Is(err, fault.New(fault.NotFound, ...))
// and the sentinel helpers below work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, code int, format string, args ...any) *Error {
	return &Error{Kind: kind, DetailCode: code, Description: fmt.Sprintf(format, args...)}
}

// Constructors. The detail code is 0 unless the caller sets one with WithCode.

func NewNotFound(format string, args ...any) *Error {
	return newf(NotFound, 0, format, args...)
}

func NewIdentifierNotUnique(format string, args ...any) *Error {
	return newf(IdentifierNotUnique, 0, format, args...)
}

func NewInvalidRequest(format string, args ...any) *Error {
	return newf(InvalidRequest, 0, format, args...)
}

func NewInvalidSystemMetadata(format string, args ...any) *Error {
	return newf(InvalidSystemMetadata, 0, format, args...)
}

func NewNotAuthorized(format string, args ...any) *Error {
	return newf(NotAuthorized, 0, format, args...)
}

// NewServiceFailure reports an internal invariant violation or an
// unexpected dependency failure inside operation.
func NewServiceFailure(operation string, err error, format string, args ...any) *Error {
	e := newf(ServiceFailure, 0, format, args...)
	e.Operation = operation
	e.Err = err
	return e
}

// WithIdentifier records the DID the failure is about.
func (e *Error) WithIdentifier(did string) *Error {
	e.Identifier = did
	return e
}

// WithCode sets the numeric detail code.
func (e *Error) WithCode(code int) *Error {
	e.DetailCode = code
	return e
}

// KindOf classifies err. A nil error has no kind and reports false.
// Untyped errors classify as ServiceFailure.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return ServiceFailure, true
}

// Is reports whether err is a typed failure of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}

// AtBoundary converts err into a *Error for return to a caller of operation.
// Typed failures pass through; anything else becomes a ServiceFailure.
func AtBoundary(operation string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Kind == ServiceFailure && fe.Operation == "" {
			fe.Operation = operation
		}
		return fe
	}
	return NewServiceFailure(operation, err, "unexpected error")
}

// Retryable marks a background-task failure as transient.
type Retryable struct {
	Err error
}

func (r *Retryable) Error() string { return fmt.Sprintf("retryable: %v", r.Err) }
func (r *Retryable) Unwrap() error { return r.Err }

// MarkRetryable wraps err so that IsRetryable reports true.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &Retryable{Err: err}
}

// IsRetryable reports whether a background-task failure is worth retrying.
// Network errors, timeouts and errors wrapped by MarkRetryable are
// retryable. Every typed failure, ServiceFailure included, is terminal
// unless it wraps one of those.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r *Retryable
	if errors.As(err, &r) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
