package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNew(t *testing.T) {
	if New("DEBUG") == nil {
		t.Fatal("Logger should not be nil")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"VERBOSE": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "WARN")

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["msg"] != "shown" {
		t.Errorf("Expected msg 'shown', got %v", out["msg"])
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "INFO").With("component", "webhook")

	logger.Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["component"] != "webhook" {
		t.Errorf("Expected component 'webhook', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}
