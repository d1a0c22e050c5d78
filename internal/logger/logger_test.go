package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/supplylink/supplylink-ml/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")

	log.Debug("hidden")
	log.Info("training complete", "samples", 26)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "training complete" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "supplylink-ml" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["samples"] != float64(26) {
		t.Errorf("samples = %v", entry["samples"])
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "text")

	log.Debug("built training features", "rows", 26)

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "rows=26") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestNew(t *testing.T) {
	if New(&config.Config{LogLevel: "info", LogFormat: "text"}) == nil {
		t.Fatal("New() returned nil")
	}
}
