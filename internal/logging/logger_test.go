package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLogger_StructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, false)
	l.Info("stage started", map[string]any{"stage": 2, "units": 3})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not valid JSON: %v", err)
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["msg"] != "stage started" {
		t.Errorf("msg = %v, want %q", entry["msg"], "stage started")
	}
	if entry["stage"] != float64(2) {
		t.Errorf("stage = %v, want 2", entry["stage"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry missing timestamp")
	}
}

func TestJSONLogger_DebugGatedByVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, false)
	l.Debug("noisy", nil)
	if buf.Len() != 0 {
		t.Errorf("debug entry written without verbose: %q", buf.String())
	}

	l = NewJSONLogger(&buf, true)
	l.Debug("noisy", nil)
	if !strings.Contains(buf.String(), `"level":"debug"`) {
		t.Errorf("verbose debug entry missing: %q", buf.String())
	}
}

func TestJSONLogger_NilWriter(t *testing.T) {
	l := NewJSONLogger(nil, true)
	// Must not panic.
	l.Info("hello", nil)
	l.Debug("hello", nil)
}
