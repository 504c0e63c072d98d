package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line, got nothing")
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, line)
	}
	return m
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug level", "debug", "console"},
		{"info level", "info", "console"},
		{"warn level", "warn", "console"},
		{"error level", "error", "console"},
		{"json format", "info", "json"},
		{"uppercase level", "DEBUG", "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Setup(tt.level, tt.format)
			if Log == nil {
				t.Error("expected Log to be initialized")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level  string
		expect zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"Info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.level); got != tt.expect {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.expect)
		}
	}
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")

	l.Info("loaded model",
		"backend", "CPUExecutionProvider",
		"inputs", 1,
		"elapsed", 1500*time.Millisecond,
		"err", errors.New("boom"),
	)

	m := decodeLine(t, &buf)
	if m["message"] != "loaded model" {
		t.Errorf("unexpected message %v", m["message"])
	}
	if m["backend"] != "CPUExecutionProvider" {
		t.Errorf("unexpected backend %v", m["backend"])
	}
	if m["err"] != "boom" {
		t.Errorf("expected error rendered as its message, got %v", m["err"])
	}
	if _, ok := m["elapsed"]; !ok {
		t.Error("expected elapsed field")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "error", "json")

	l.Debug("debug message should be filtered")
	l.Info("info message should be filtered")
	l.Warn("warn message should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected filtered output, got %q", buf.String())
	}

	l.Error("error message should appear")
	if !strings.Contains(buf.String(), "error message should appear") {
		t.Errorf("expected error message, got %q", buf.String())
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json").With("component", "runner", "orphan")

	l.Info("state change")
	m := decodeLine(t, &buf)
	if m["component"] != "runner" {
		t.Errorf("expected component field, got %v", m["component"])
	}
}

func TestWithLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")
	if l.Enabled(zerolog.DebugLevel) {
		t.Error("info logger should not enable debug")
	}

	d := l.WithLevel("debug")
	if !d.Enabled(zerolog.DebugLevel) {
		t.Error("expected debug to be enabled")
	}
	d.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected debug output, got %q", buf.String())
	}
}

func TestOddAndNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")

	l.Info("odd args", 123, "value", "orphan_key")
	m := decodeLine(t, &buf)
	if m["123"] != "value" {
		t.Errorf("expected non-string key converted, got %v", m)
	}
	if _, ok := m["orphan_key"]; ok {
		t.Error("orphan key without value should be dropped")
	}
}

func TestGlobalLoggerMethods(t *testing.T) {
	Setup("info", "console")

	Log.Info("test info message", "key", "value")
	Log.Debug("test debug message", "key", "value")
	Log.Warn("test warn message", "key", nil)
	Log.Error("test error message", "key", "value")
}
