package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" info ":  slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"":        slog.LevelDebug,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newWithWriter(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("visible", "component", "test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not json: %v", err)
	}
	if record["msg"] != "visible" || record["component"] != "test" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestOrDiscard(t *testing.T) {
	t.Parallel()

	if OrDiscard(nil) == nil {
		t.Fatal("expected a logger for nil input")
	}
	logger := Discard()
	if OrDiscard(logger) != logger {
		t.Fatal("expected the same logger back")
	}
}
