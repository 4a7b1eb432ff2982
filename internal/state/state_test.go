package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEnsureGeneratesSequentialKeys(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	a, _ := m.Ensure("")
	b, _ := m.Ensure("")
	if a.Key() != "chat-1" || b.Key() != "chat-2" {
		t.Fatalf("keys = %s, %s", a.Key(), b.Key())
	}
	if m.CurrentKey() != "chat-2" {
		t.Fatalf("current = %s", m.CurrentKey())
	}
	again, _ := m.Ensure("chat-1")
	if again != a {
		t.Fatalf("Ensure returned a new conversation for an existing key")
	}
}

func TestConversationRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	conv, _ := m.Ensure("work notes")
	conv.Append(Message{ID: "temp-1", Role: "user", Content: "fill C3"})
	conv.SetContext("temp-1", []string{"101", "102"})
	conv.Append(Message{
		ID:   "a1",
		Role: "assistant",
		Parts: []Part{
			{Type: "text", Text: "Setting it."},
			{Type: "tool", Tool: &ToolInvocation{ToolCallID: "c1", ToolName: "edit_sheet", Args: json.RawMessage(`{"cell":"C3"}`), State: ToolStateResult, Result: "applied to Budget (102)"}},
		},
	})
	if !conv.RenameMessage("temp-1", "u1") {
		t.Fatalf("rename failed")
	}
	if err := m.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(conv.StoragePath()) != "work_notes.json" {
		t.Fatalf("path = %s", conv.StoragePath())
	}

	m2, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m2.CurrentKey() != "work notes" {
		t.Fatalf("current after reload = %q", m2.CurrentKey())
	}
	got := m2.Current()
	if !reflect.DeepEqual(got.ContextFor("u1"), []string{"101", "102"}) {
		t.Fatalf("context = %v", got.ContextFor("u1"))
	}
	if len(got.ContextFor("temp-1")) != 0 {
		t.Fatalf("context left under temp id")
	}
	msg, ok := got.Message("a1")
	if !ok {
		t.Fatalf("assistant message missing")
	}
	tools := msg.Tools()
	if len(tools) != 1 || tools[0].Result != "applied to Budget (102)" {
		t.Fatalf("tools = %+v", tools)
	}
}

func TestMessagesAreCopies(t *testing.T) {
	m, _ := NewManager(t.TempDir(), nil)
	conv := m.Current()
	conv.Append(Message{ID: "a", Role: "assistant", Parts: []Part{{Type: "tool", Tool: &ToolInvocation{State: ToolStateCall}}}})
	msgs := conv.Messages()
	msgs[0].Parts[0].Tool.State = ToolStateResult
	msg, _ := conv.Message("a")
	if msg.Parts[0].Tool.State != ToolStateCall {
		t.Fatalf("caller mutated stored tool state")
	}
}

func TestDeleteAndUse(t *testing.T) {
	m, _ := NewManager(t.TempDir(), nil)
	conv, _ := m.Ensure("a")
	path := conv.StoragePath()
	if err := m.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if m.CurrentKey() != "" {
		t.Fatalf("current not cleared")
	}
	if _, err := m.Use("a"); !errors.Is(err, ErrUnknownState) {
		t.Fatalf("Use deleted = %v", err)
	}
	if err := m.Delete("a"); !errors.Is(err, ErrUnknownState) {
		t.Fatalf("Delete twice = %v", err)
	}
}

func TestSummariesSkipCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if len(m.Summaries()) != 0 {
		t.Fatalf("corrupt file loaded")
	}
	conv, _ := m.Ensure("x")
	conv.Append(Message{ID: "1", Role: "user", Content: "hi"})
	s := m.Summaries()
	if len(s) != 1 || s[0].MessageCount != 1 {
		t.Fatalf("summaries = %+v", s)
	}
}
