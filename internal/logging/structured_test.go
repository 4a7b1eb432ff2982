package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"path/filepath"
	"strings"
	"testing"
)

func TestStructuredLoggerTextMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewStructuredLogger(log.New(&buf, "", 0), "editor", false).WithFile("42")
	l.Warn("flush failed", map[string]any{"b": 2}, map[string]any{"a": 1})

	got := strings.TrimSpace(buf.String())
	want := "[WARN] [editor] [file:42] flush failed | a=1 b=2"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStructuredLoggerJSONMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewStructuredLogger(log.New(&buf, "", 0), "relay", true)
	l.Info("dispatched", map[string]any{"tool": "edit_doc"})

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if entry.Level != "INFO" || entry.Component != "relay" || entry.Fields["tool"] != "edit_doc" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestWithComponentDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewStructuredLogger(log.New(&buf, "", 0), "store", false)
	_ = parent.WithComponent("watcher")
	parent.Info("hello")
	if !strings.Contains(buf.String(), "[store]") {
		t.Fatalf("parent component changed: %q", buf.String())
	}
}

func TestNewFileLoggerWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "aira.log")
	var mirror bytes.Buffer
	logger, closer, err := NewFileLogger(FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1, Mirror: &mirror})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	logger.Printf("started")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.Contains(mirror.String(), "started") {
		t.Fatalf("mirror missing line: %q", mirror.String())
	}
}

func TestNewFileLoggerRequiresPath(t *testing.T) {
	if _, _, err := NewFileLogger(FileOptions{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
