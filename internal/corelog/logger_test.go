package corelog

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultConfig(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("dropped")
	logger.Info("also dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected below-threshold lines suppressed, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected warn line present, got %q", out)
	}
}

func TestLoggerFormatsKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("dispatch", "identifier", 42, "function", "RAW_READ")

	out := buf.String()
	if !strings.Contains(out, "identifier=42") || !strings.Contains(out, "function=RAW_READ") {
		t.Errorf("expected key=value pairs in output, got %q", out)
	}
}

func TestDefaultLoggerIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Error("expected Default() to return the same instance")
	}
}

func TestSetDefaultReplacesSingleton(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)
	defer SetDefault(NewLogger(nil))

	Info("via package-level helper")

	if !strings.Contains(buf.String(), "via package-level helper") {
		t.Errorf("expected package-level Info to route through custom default, got %q", buf.String())
	}
}
