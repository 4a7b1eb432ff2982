package prompts

import (
	"encoding/json"
	"strings"
	"testing"
)

func jsonString(t *testing.T, s string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestBuildSystemTruncatesLargeContent(t *testing.T) {
	small := strings.Repeat("a", 5000)
	large := strings.Repeat("b", 9000)
	out := BuildSystem([]ContextFile{
		{ID: "1", Name: "Small", Type: "doc", Content: jsonString(t, small)},
		{ID: "2", Name: "Large", Type: "sheet", Content: jsonString(t, large)},
	}, Options{CharLimit: 8000})

	parts := strings.Split(out, "\n\n")
	if len(parts) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(parts))
	}
	if parts[0] != "Context File 1 (doc): Small [id: 1]\n\""+small+"\"" {
		t.Fatalf("small section altered (len %d)", len(parts[0]))
	}
	if strings.Contains(parts[0], TruncationMarker) {
		t.Fatalf("5000-character content was truncated")
	}
	body := strings.TrimPrefix(parts[1], "Context File 2 (sheet): Large [id: 2]\n")
	if !strings.HasSuffix(body, TruncationMarker) {
		t.Fatalf("large content not marked as truncated")
	}
	if got := len([]rune(strings.TrimSuffix(body, TruncationMarker))); got != 8000 {
		t.Fatalf("truncated content has %d characters, want 8000", got)
	}
}

func TestBuildSystemModes(t *testing.T) {
	if got := BuildSystem(nil, Options{}); got != "" {
		t.Fatalf("Ask mode without context = %q, want empty", got)
	}
	agent := BuildSystem(nil, Options{Agent: true})
	if agent != AgentInstructions() || !strings.Contains(agent, "edit_sheet") {
		t.Fatalf("Agent prompt = %q", agent)
	}
	withCtx := BuildSystem([]ContextFile{{ID: "7", Name: "Plan", Type: "doc", Content: json.RawMessage(`{ "a" : 1 }`)}}, Options{Agent: true})
	if !strings.HasPrefix(withCtx, AgentInstructions()+"\n\nContext File 1 (doc): Plan [id: 7]\n{\"a\":1}") {
		t.Fatalf("Agent prompt with context = %q", withCtx)
	}
}

func TestBuildSystemUnavailableContent(t *testing.T) {
	out := BuildSystem([]ContextFile{
		{ID: "1", Name: "Broken", Type: "doc", Content: json.RawMessage(`{oops`)},
		{ID: "2", Name: "Missing", Type: "doc"},
	}, Options{})
	if strings.Count(out, Unavailable) != 2 {
		t.Fatalf("prompt = %q", out)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	got, cut := Truncate("héllo wörld", 5)
	if !cut || got != "héllo"+TruncationMarker {
		t.Fatalf("Truncate = %q, %v", got, cut)
	}
	got, cut = Truncate("short", 5)
	if cut || got != "short" {
		t.Fatalf("Truncate exact length = %q, %v", got, cut)
	}
}
