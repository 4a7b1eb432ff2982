// Package diff compares plain-text views of editor snapshots line by line.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Line kinds.
const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

// MaxLines bounds the input size Lines will compare.
const MaxLines = 5000

type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"oldLine,omitempty"`
	NewLine int    `json:"newLine,omitempty"`
}

// Summary counts changed lines.
type Summary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

func (s Summary) Empty() bool { return s.Added == 0 && s.Removed == 0 }

func (s Summary) String() string {
	return fmt.Sprintf("+%d -%d", s.Added, s.Removed)
}

// Lines returns a line diff of before and after. truncated is true when the
// inputs exceed MaxLines and no diff was computed.
func Lines(before, after string) (lines []Line, truncated bool) {
	if lineCount(before)+lineCount(after) > MaxLines {
		return nil, true
	}
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	oldLine, newLine := 1, 1
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, text := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: text, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: text, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines, false
}

// Summarize counts added and removed lines between before and after. Inputs
// too large to diff are reported as a full replacement.
func Summarize(before, after string) Summary {
	if before == after {
		return Summary{}
	}
	lines, truncated := Lines(before, after)
	if truncated {
		return Summary{Added: lineCount(after), Removed: lineCount(before)}
	}
	var s Summary
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			s.Added++
		case LineRemoved:
			s.Removed++
		}
	}
	return s
}

// Render prints changed lines with +/- prefixes, keeping up to context
// unchanged lines around each change.
func Render(before, after string, context int) string {
	lines, truncated := Lines(before, after)
	if truncated {
		return fmt.Sprintf("(diff omitted: more than %d lines)\n", MaxLines)
	}
	keep := make([]bool, len(lines))
	for i, l := range lines {
		if l.Type == LineContext {
			continue
		}
		for j := max(0, i-context); j <= min(len(lines)-1, i+context); j++ {
			keep[j] = true
		}
	}
	var b strings.Builder
	gap := false
	for i, l := range lines {
		if !keep[i] {
			gap = true
			continue
		}
		if gap && b.Len() > 0 {
			b.WriteString("...\n")
		}
		gap = false
		switch l.Type {
		case LineAdded:
			b.WriteString("+ ")
		case LineRemoved:
			b.WriteString("- ")
		default:
			b.WriteString("  ")
		}
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(value, "\n") + 1
}
