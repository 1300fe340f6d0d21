package verdict

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verdict.log")

	logger, err := NewLogger("warn", path, "json")
	if err != nil {
		t.Fatalf("NewLogger() returned error: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Str("run_id", "r1").Msg("visible")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1:\n%s", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "visible" || entry["run_id"] != "r1" || entry["component"] != "verdict" {
		t.Errorf("entry = %v", entry)
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
}

func TestNewLogger_ConsoleFileHasNoColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verdict.log")

	logger, err := NewLogger("", path, "console")
	if err != nil {
		t.Fatalf("NewLogger() returned error: %v", err)
	}
	logger.Info().Msg("plain")
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "plain") {
		t.Errorf("log = %q, want it to contain the message", data)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Errorf("log contains ANSI escapes: %q", data)
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger("shouty", "", "json"); err == nil {
		t.Error("NewLogger() returned nil error for invalid level")
	}
}

func TestNewLogger_UnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "verdict.log")
	if _, err := NewLogger("info", path, "json"); err == nil {
		t.Error("NewLogger() returned nil error for unwritable path")
	}
}

func TestLogger_CloseNil(t *testing.T) {
	var l *Logger
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nil logger returned %v", err)
	}
}

func TestTruncateForLog(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 4, "this... (truncated)"},
	}
	for _, tt := range tests {
		if got := truncateForLog(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateForLog(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
