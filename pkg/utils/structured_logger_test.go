package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(level LogLevel, format LogFormat) (*StructuredLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger, _ := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  level,
		Output: buf,
		Format: format,
	})
	return logger, buf
}

func TestNewStructuredLoggerDefaults(t *testing.T) {
	logger, err := NewStructuredLogger(nil)
	if err != nil {
		t.Fatalf("NewStructuredLogger(nil) error: %v", err)
	}
	if logger.GetLevel() != INFO {
		t.Errorf("default level = %v, want INFO", logger.GetLevel())
	}
}

func TestStructuredLoggerLevelFiltering(t *testing.T) {
	logger, buf := newTestLogger(WARN, FormatText)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown warn")
	logger.Error("shown error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-level messages leaked: %s", out)
	}
	if !strings.Contains(out, "shown warn") || !strings.Contains(out, "shown error") {
		t.Errorf("at-level messages missing: %s", out)
	}
}

func TestStructuredLoggerTextFormat(t *testing.T) {
	logger, buf := newTestLogger(INFO, FormatText)

	logger.Info("cache pass complete", map[string]interface{}{
		"evicted": 3,
		"bytes":   1024,
	})

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("missing level tag: %s", out)
	}
	if !strings.Contains(out, "cache pass complete") {
		t.Errorf("missing message: %s", out)
	}
	// Fields emit in sorted key order.
	if !strings.Contains(out, "{bytes=1024, evicted=3}") {
		t.Errorf("fields missing or unsorted: %s", out)
	}
}

func TestStructuredLoggerJSONFormat(t *testing.T) {
	logger, buf := newTestLogger(INFO, FormatJSON)

	logger.Info("stored item", map[string]interface{}{"key": "obj-1"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %q, want INFO", entry.Level)
	}
	if entry.Message != "stored item" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Fields["key"] != "obj-1" {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestStructuredLoggerWithFields(t *testing.T) {
	logger, buf := newTestLogger(INFO, FormatJSON)

	derived := logger.WithField("component", "store").WithFields(map[string]interface{}{
		"backend": "redis",
	})
	derived.Info("connected")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry.Fields["component"] != "store" || entry.Fields["backend"] != "redis" {
		t.Errorf("context fields missing: %v", entry.Fields)
	}

	// Parent must be unaffected by derivation.
	buf.Reset()
	logger.Info("plain")
	entry = LogEntry{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(entry.Fields) != 0 {
		t.Errorf("parent logger gained fields: %v", entry.Fields)
	}
}

func TestStructuredLoggerComponentLevels(t *testing.T) {
	logger, buf := newTestLogger(INFO, FormatText)
	logger.SetComponentLevel("optimizer", ERROR)

	noisy := logger.WithComponent("optimizer")
	noisy.Info("suppressed")
	noisy.Error("surfaced")

	other := logger.WithComponent("store")
	other.Info("store info")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("component override not applied: %s", out)
	}
	if !strings.Contains(out, "surfaced") || !strings.Contains(out, "store info") {
		t.Errorf("expected messages missing: %s", out)
	}
}

func TestStructuredLoggerSetLevel(t *testing.T) {
	logger, buf := newTestLogger(ERROR, FormatText)

	logger.Info("before")
	logger.SetLevel(DEBUG)
	logger.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("message before SetLevel leaked: %s", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("message after SetLevel missing: %s", out)
	}
}

func TestStructuredLoggerFormattedVariants(t *testing.T) {
	logger, buf := newTestLogger(DEBUG, FormatText)

	logger.Debugf("evicted %d items", 7)
	logger.Infof("freed %s", FormatBytes(2048))

	out := buf.String()
	if !strings.Contains(out, "evicted 7 items") {
		t.Errorf("Debugf output missing: %s", out)
	}
	if !strings.Contains(out, "freed 2.0 KB") {
		t.Errorf("Infof output missing: %s", out)
	}
}

func TestStructuredLoggerStackOnError(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := NewStructuredLogger(&StructuredLoggerConfig{
		Level:        DEBUG,
		Output:       buf,
		Format:       FormatText,
		IncludeStack: true,
	})

	logger.Info("no stack here")
	if strings.Contains(buf.String(), "Stack trace:") {
		t.Errorf("stack emitted below ERROR: %s", buf.String())
	}

	buf.Reset()
	logger.Error("boom")
	if !strings.Contains(buf.String(), "Stack trace:") {
		t.Errorf("stack missing on ERROR: %s", buf.String())
	}
}

func TestStructuredLoggerCloseWithoutRotator(t *testing.T) {
	logger, _ := newTestLogger(INFO, FormatText)
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync() error: %v", err)
	}
}
