package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "json", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("hidden")
	logger.Warn("P1: C1 abandoned", "kind", "abandoned")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "P1: C1 abandoned" || entry["kind"] != "abandoned" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New("loud", "text", nil); err == nil {
		t.Error("New() with invalid level should fail")
	}
	if _, err := New("info", "xml", nil); err == nil {
		t.Error("New() with invalid format should fail")
	}
}
