package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/radio-control/rigd/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf, nil)
	l.With("component", "rigctl").Info("invocation done", "command", "f")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for k, want := range map[string]string{
		"service":   "rigd",
		"version":   "1.2.3",
		"component": "rigctl",
		"command":   "f",
		"msg":       "invocation done",
	} {
		if entry[k] != want {
			t.Errorf("%s = %v, want %q", k, entry[k], want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "dev", &buf, nil)
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigd.log")
	l := New(config.LoggingConfig{Level: "info", Output: "file", File: path, MaxSizeMB: 1}, "dev")
	l.Info("beacon started")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "beacon started") {
		t.Errorf("log file = %q, want entry", data)
	}
}

func TestCloseWithoutFile(t *testing.T) {
	if err := Discard().Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
