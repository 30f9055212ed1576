package app

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 250*int(time.Millisecond), time.UTC)

	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "Create",
			parameters: "urn:uuid:1",
		},
		{
			name:       "empty parameters",
			operation:  "ProcessReplication",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters, now)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if op.ID != "20240115T103000.250Z" {
				t.Errorf("ID = %q, want %q", op.ID, "20240115T103000.250Z")
			}
		})
	}
}

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("Archive", "", time.Now())
	op.Fail(nil)
	if op.Status != "success" {
		t.Fatalf("Fail(nil) set Status = %q", op.Status)
	}

	first := errors.New("not authorized")
	op.Fail(first)
	op.Fail(errors.New("closing database"))
	if op.Status != "error" || op.Err != first {
		t.Errorf("Status = %q, Err = %v, want error and the first failure", op.Status, op.Err)
	}
}

func TestOperation_Duration(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	op := NewOperation("Audit", "", start)
	if got := op.Duration(start.Add(1500*time.Millisecond + 300*time.Microsecond)); got != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", got)
	}
}
