package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q: %v", line, err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"fatal", FATAL},
		{"nonsense", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "DEBUG", JSONFormat: true, Component: "test"})

	l.Info("record created", "kind", "deposit", "err", errors.New("boom"))

	entry := decodeLine(t, &buf)
	if entry["message"] != "record created" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["component"] != "test" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["kind"] != "deposit" {
		t.Errorf("kind = %v", entry["kind"])
	}
	if entry["err"] != "boom" {
		t.Errorf("err = %v", entry["err"])
	}
	if entry["timestamp"] == nil {
		t.Error("missing timestamp")
	}
}

func TestLoggerPrintfArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "INFO", JSONFormat: true})

	l.Warn("skipped %d records", 3)

	entry := decodeLine(t, &buf)
	if entry["message"] != "skipped 3 records" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "WARN", JSONFormat: true})

	l.Info("dropped")
	l.Debug("dropped too")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below WARN, got %q", buf.String())
	}

	l.Error("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected error line, got %q", buf.String())
	}
}

func TestDerivedLoggersDoNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, &Config{Level: "INFO", JSONFormat: true})
	child := base.WithField("user_id", "u1").WithError(errors.New("bad"))

	child.Info("child")
	entry := decodeLine(t, &buf)
	if entry["user_id"] != "u1" || entry["error"] != "bad" {
		t.Errorf("child fields missing: %v", entry)
	}

	buf.Reset()
	base.Info("base")
	entry = decodeLine(t, &buf)
	if _, ok := entry["user_id"]; ok {
		t.Error("base logger picked up child field")
	}
}

func TestWithErrorNil(t *testing.T) {
	l := NewWithWriter(&bytes.Buffer{}, &Config{})
	if l.WithError(nil) != l {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestTraceContext(t *testing.T) {
	ctx, l := WithTraceContext(context.Background(), "abc123")
	if TraceIDFromContext(ctx) != "abc123" {
		t.Errorf("trace id = %q", TraceIDFromContext(ctx))
	}
	if FromContext(ctx) != l {
		t.Error("FromContext did not return the attached logger")
	}

	ctx, _ = WithTraceContext(context.Background(), "")
	if len(TraceIDFromContext(ctx)) != 32 {
		t.Errorf("generated trace id has wrong length: %q", TraceIDFromContext(ctx))
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "INFO", JSONFormat: false})

	l.Info("plain text", "kind", "wallet")

	out := buf.String()
	if !strings.Contains(out, "plain text") || !strings.Contains(out, "kind=wallet") {
		t.Errorf("unexpected console output: %q", out)
	}
}
