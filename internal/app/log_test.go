package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLineHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "object created",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tobject created\n",
		},
		{
			name:    "warn level",
			opID:    "op-456",
			level:   slog.LevelWarn,
			message: "dropping SID of replica",
			want:    "2024-06-15T14:30:45Z\tWARN\top-456\tdropping SID of replica\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "object created",
			attrs:   []slog.Attr{slog.String("pid", "urn:uuid:1"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tobject created\tpid=urn:uuid:1\tsize=42\n",
		},
		{
			name:    "group attr",
			opID:    "op-1",
			level:   slog.LevelInfo,
			message: "replica",
			attrs:   []slog.Attr{slog.Group("record", slog.String("peer", "urn:node:A"))},
			want:    "2024-06-15T14:30:45Z\tINFO\top-1\treplica\trecord.peer=urn:node:A\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newLineHandler(&buf, tt.opID, nil)

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLineHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newLineHandler(&buf, "op-1", nil)

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "replication")}).(*lineHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "replica completed", 0)
	r.AddAttrs(slog.String("pid", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=replication") {
		t.Errorf("expected pre-set attr component=replication, got: %q", got)
	}
	if !strings.Contains(got, "pid=abc") {
		t.Errorf("expected record attr pid=abc, got: %q", got)
	}
}

func TestLineHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	h := newLineHandler(&bytes.Buffer{}, "op-1", nil)
	h.attrs = []slog.Attr{slog.String("a", "1")}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*lineHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestLineHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLineHandler(&buf, "op-1", nil))

	logger.WithGroup("audit").With("node", "urn:node:TEST").Info("checked", "pid", "p1")

	got := buf.String()
	for _, want := range []string{"\taudit.node=urn:node:TEST", "\taudit.pid=p1"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}
}

func TestLineHandler_Enabled(t *testing.T) {
	all := newLineHandler(nil, "", nil)
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !all.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false without a level, want true", level)
		}
	}

	info := newLineHandler(nil, "", slog.LevelInfo)
	if info.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(DEBUG) = true at INFO level")
	}
	if !info.Enabled(context.Background(), slog.LevelError) {
		t.Error("Enabled(ERROR) = false at INFO level")
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "test-op", slog.LevelInfo)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Debug("hidden")
	logger.Info("written", "pid", "p1")

	b, err := os.ReadFile(filepath.Join(dir, "mn.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	got := string(b)
	if strings.Contains(got, "hidden") {
		t.Errorf("log file contains a debug record: %q", got)
	}
	if !strings.Contains(got, "\ttest-op\twritten\tpid=p1\n") {
		t.Errorf("log file = %q", got)
	}
}
