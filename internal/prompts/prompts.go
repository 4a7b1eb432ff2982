// Package prompts assembles the system prompt sent with each chat request.
package prompts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed agent_instructions.txt
var agentInstructions string

const (
	// TruncationMarker follows content cut at the character limit.
	TruncationMarker = "\n...[truncated]"
	// Unavailable replaces content that cannot be serialized.
	Unavailable = "[content unavailable]"

	defaultCharLimit = 8000
)

// ContextFile is a file attached to a chat request.
type ContextFile struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Options controls BuildSystem.
type Options struct {
	// Agent prepends the editing instructions.
	Agent bool
	// CharLimit caps each file's serialized content, in characters. Zero means 8000.
	CharLimit int
}

// AgentInstructions returns the built-in editing instructions.
func AgentInstructions() string {
	return strings.TrimSpace(agentInstructions)
}

// BuildSystem renders the system prompt. It is empty when there is no context
// and the request is not in Agent mode.
func BuildSystem(files []ContextFile, opts Options) string {
	limit := opts.CharLimit
	if limit <= 0 {
		limit = defaultCharLimit
	}
	var sections []string
	if opts.Agent {
		sections = append(sections, AgentInstructions())
	}
	for i, f := range files {
		kind := f.Type
		if kind == "" {
			kind = "file"
		}
		header := fmt.Sprintf("Context File %d (%s): %s [id: %s]", i+1, kind, f.Name, f.ID)
		sections = append(sections, header+"\n"+renderContent(f.Content, limit))
	}
	return strings.Join(sections, "\n\n")
}

func renderContent(content json.RawMessage, limit int) string {
	if len(bytes.TrimSpace(content)) == 0 {
		return Unavailable
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, content); err != nil {
		return Unavailable
	}
	text, _ := Truncate(buf.String(), limit)
	return text
}

// Truncate cuts s to limit runes and appends TruncationMarker when it had to.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncationMarker, true
		}
		n++
	}
	return s, false
}
