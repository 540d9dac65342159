package logx

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// setupTestLogger sets up a logger with a bytes.Buffer for testing.
func setupTestLogger(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(nil)
		SetLevel(prev)
	})
	return &buf
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-agent")

	if logger.GetAgentID() != "test-agent" {
		t.Errorf("Expected agent ID 'test-agent', got '%s'", logger.GetAgentID())
	}
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger(t, LevelInfo)

	logger := NewLogger("ValidatorAgent")
	logger.Info("Sending messages to %s", "groq")

	output := buf.String()
	if !strings.Contains(output, "[ValidatorAgent] INFO: Sending messages to groq") {
		t.Errorf("Unexpected log line: %s", output)
	}
	if !strings.HasPrefix(output, "[") || !strings.HasSuffix(output, "\n") {
		t.Errorf("Expected bracketed timestamp and newline, got: %q", output)
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name    string
		min     Level
		want    []string
		notWant []string
	}{
		{"info hides debug", LevelInfo, []string{"INFO: i", "WARN: w", "ERROR: e"}, []string{"DEBUG: d"}},
		{"debug shows all", LevelDebug, []string{"DEBUG: d", "INFO: i", "WARN: w", "ERROR: e"}, nil},
		{"error only", LevelError, []string{"ERROR: e"}, []string{"DEBUG: d", "INFO: i", "WARN: w"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := setupTestLogger(t, tt.min)
			logger := NewLogger("agent")
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("expected %q in output:\n%s", s, out)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("did not expect %q in output:\n%s", s, out)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWithAgentID(t *testing.T) {
	buf := setupTestLogger(t, LevelInfo)

	renamed := NewLogger("original").WithAgentID("renamed")
	renamed.Info("hello")

	if !strings.Contains(buf.String(), "[renamed]") {
		t.Errorf("Expected renamed agent in output: %s", buf.String())
	}
}

func TestTimestampFormat(t *testing.T) {
	buf := setupTestLogger(t, LevelInfo)
	NewLogger("ts").Info("x")

	line := buf.String()
	end := strings.Index(line, "]")
	if end < 0 {
		t.Fatalf("no timestamp in %q", line)
	}
	if _, err := time.Parse(timestampFormat, line[1:end]); err != nil {
		t.Errorf("timestamp %q does not parse: %v", line[1:end], err)
	}
}

func TestWrap(t *testing.T) {
	buf := setupTestLogger(t, LevelInfo)

	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	base := errors.New("disk full")
	err := Wrap(base, "load config")
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to unwrap to base")
	}
	if err.Error() != "load config: disk full" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !strings.Contains(buf.String(), "[system] ERROR: load config: disk full") {
		t.Errorf("expected logged error, got %s", buf.String())
	}
}
