package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Format: "text", Writer: &buf})

	logger.Info("job submitted", "scheduler_id", "9911023")

	output := buf.String()
	if !strings.Contains(output, "job submitted") {
		t.Errorf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, "scheduler_id=9911023") {
		t.Errorf("expected scheduler_id attr in output, got: %s", output)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Format: "json", Writer: &buf})

	logger.Info("job submitted", "scheduler_id", "9911023")

	output := buf.String()
	if !strings.Contains(output, `"msg":"job submitted"`) {
		t.Errorf("expected JSON msg field in output, got: %s", output)
	}
	if !strings.Contains(output, `"scheduler_id":"9911023"`) {
		t.Errorf("expected JSON attr in output, got: %s", output)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Writer: &buf})

	logger.Info("should not appear")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Errorf("INFO message should be filtered at WARN level, got: %s", output)
	}
	if !strings.Contains(output, "should appear") {
		t.Errorf("WARN message should appear at WARN level, got: %s", output)
	}
}

func TestNew_ComponentChildLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "debug", Writer: &buf})
	child := logger.With("component", "monitor")

	child.Debug("progress", "completed", 3)

	output := buf.String()
	if !strings.Contains(output, "component=monitor") {
		t.Errorf("expected component attr in output, got: %s", output)
	}
	if !strings.Contains(output, "completed=3") {
		t.Errorf("expected completed attr in output, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" error ", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
