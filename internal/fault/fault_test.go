package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "marked", err: MarkRetryable(errors.New("peer busy")), want: true},
		{name: "wrapped mark", err: fmt.Errorf("fetching: %w", MarkRetryable(errors.New("peer busy"))), want: true},
		{name: "deadline", err: fmt.Errorf("fetching: %w", context.DeadlineExceeded), want: true},
		{name: "network", err: dial, want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "not found", err: NewNotFound("gone"), want: false},
		{name: "invalid system metadata", err: NewInvalidSystemMetadata("bad checksum"), want: false},
		{name: "service failure", err: NewServiceFailure("mn.Service.Create", nil, "broken chain"), want: false},
		{name: "service failure over network error", err: NewServiceFailure("mn.Service.Create", dial, "fetch failed"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	if _, ok := KindOf(nil); ok {
		t.Error("KindOf(nil) reported a kind")
	}
	if k, _ := KindOf(fmt.Errorf("wrapped: %w", NewNotAuthorized("no"))); k != NotAuthorized {
		t.Errorf("KindOf(wrapped NotAuthorized) = %v", k)
	}
	if k, _ := KindOf(errors.New("disk full")); k != ServiceFailure {
		t.Errorf("KindOf(untyped) = %v, want ServiceFailure", k)
	}
	if !errors.Is(NewNotFound("a"), NewNotFound("b")) {
		t.Error("errors.Is() does not match failures of the same kind")
	}
}

func TestAtBoundary(t *testing.T) {
	const op = "mn.Service.Update"

	if AtBoundary(op, nil) != nil {
		t.Error("AtBoundary(nil) != nil")
	}

	err := AtBoundary(op, errors.New("disk full"))
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != ServiceFailure || fe.Operation != op {
		t.Errorf("AtBoundary(untyped) = %v, want ServiceFailure naming %s", err, op)
	}

	typed := NewIdentifierNotUnique("taken").WithIdentifier("p1")
	if got := AtBoundary(op, typed); got != typed {
		t.Errorf("AtBoundary(typed) = %v, want it unchanged", got)
	}
}
