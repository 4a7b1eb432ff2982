// Package editor hosts the document and spreadsheet engines and the adapters
// that keep their live instances in sync with the workspace store.
package editor

import (
	"encoding/json"
	"errors"
	"fmt"

	"aira/internal/workspace"
)

var (
	ErrDisposed    = errors.New("editor instance disposed")
	ErrNotMounted  = errors.New("no editor mounted for file")
	ErrUnsupported = errors.New("command not supported by this editor")
	ErrOutOfRange  = errors.New("cell outside sheet bounds")
	// ErrIgnored wraps a command that was delivered but changed nothing.
	ErrIgnored = errors.New("command ignored")
)

// Engine creates live editing instances from stored snapshots.
type Engine interface {
	Load(fileID string, snapshot json.RawMessage) (Instance, error)
	Blank(fileID string) Instance
}

// Instance is one live editor. Implementations are safe for concurrent use.
type Instance interface {
	Snapshot() (json.RawMessage, error)
	Text() string
	Dispose()
}

// TextAppender is implemented by document instances.
type TextAppender interface {
	AppendText(text string) error
}

// CellSetter is implemented by spreadsheet instances. Row and col are zero-based.
type CellSetter interface {
	SetCell(row, col int, value string) error
	Cell(row, col int) (string, bool)
}

// Resizer grows the active sheet so that rows x cols fit. It never shrinks.
type Resizer interface {
	EnsureSize(rows, cols int)
}

// Engines maps a file kind to its engine.
type Engines map[workspace.Kind]Engine

// DefaultEngines returns the built-in document and spreadsheet engines.
func DefaultEngines() Engines {
	return Engines{
		workspace.KindDoc:   DocEngine{},
		workspace.KindSheet: SheetEngine{},
	}
}

func (e Engines) For(kind workspace.Kind) (Engine, error) {
	eng, ok := e[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workspace.ErrInvalidKind, kind)
	}
	return eng, nil
}

// PlainText renders a stored file without mounting it. Content that cannot be
// loaded renders as an empty document of its kind.
func (e Engines) PlainText(f workspace.File) string {
	eng, err := e.For(f.Kind)
	if err != nil {
		return ""
	}
	inst, err := eng.Load(f.ID, f.Content)
	if err != nil {
		inst = eng.Blank(f.ID)
	}
	defer inst.Dispose()
	return inst.Text()
}

// hasContent reports whether a snapshot carries anything worth loading.
func hasContent(snapshot json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(snapshot, &v); err != nil {
		return len(snapshot) > 0
	}
	switch t := v.(type) {
	case nil:
		return false
	case map[string]any:
		return len(t) > 0
	}
	return true
}
