package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("debug", &buf).WithComponent("test")
	l.Infow("event.happened", map[string]any{"job_id": "j1", "count": 2})

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if rec["level"] != "info" {
		t.Fatalf("unexpected level: %#v", rec["level"])
	}
	if rec["msg"] != "event.happened" {
		t.Fatalf("unexpected msg: %#v", rec["msg"])
	}
	if rec["component"] != "test" {
		t.Fatalf("unexpected component: %#v", rec["component"])
	}
	if rec["job_id"] != "j1" {
		t.Fatalf("unexpected field job_id: %#v", rec["job_id"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDebugEventsDroppedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("info", &buf).WithComponent("executor")
	l.Debugw("table.completed", map[string]any{"table": "users"})
	l.Warnw("resolver.cycle_detected", map[string]any{"unresolved": []string{"a", "b"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var rec struct {
		Level      string   `json:"level"`
		Msg        string   `json:"msg"`
		Component  string   `json:"component"`
		Unresolved []string `json:"unresolved"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if rec.Level != "warn" || rec.Msg != "resolver.cycle_detected" || rec.Component != "executor" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Unresolved) != 2 || rec.Unresolved[0] != "a" {
		t.Fatalf("unexpected unresolved: %v", rec.Unresolved)
	}
}

func TestLoggerWithFieldsAndNop(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("info", &buf).With(map[string]any{"job_id": "j1"})
	l.Warnw("job.cancel_requested", map[string]any{"progress": 40})

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if rec["job_id"] != "j1" || rec["progress"] != float64(40) || rec["level"] != "warn" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if _, ok := rec["time"]; !ok {
		t.Fatal("expected time field")
	}

	Nop().Errorw("ignored", map[string]any{"x": 1})
}
