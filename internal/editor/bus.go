package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Markers written by InsertMarker when no text is given.
const (
	DocMarker   = "\rUsed by AI"
	SheetMarker = "Used by AI"
)

// Command is an edit addressed to one file.
type Command interface {
	Target() string
}

// InsertMarker appends Text (or DocMarker) to a document, or writes
// SheetMarker into A1 of a spreadsheet.
type InsertMarker struct {
	FileID string `json:"fileId"`
	Text   string `json:"text,omitempty"`
}

// SetCell writes Value at the A1 address Cell of the active sheet.
type SetCell struct {
	FileID string `json:"fileId"`
	Cell   string `json:"cell"`
	Value  string `json:"value"`
}

func (c InsertMarker) Target() string { return c.FileID }
func (c SetCell) Target() string      { return c.FileID }

// Bus routes commands to the adapter mounted for their target.
type Bus struct {
	mu       sync.RWMutex
	adapters map[string]*Adapter
}

func NewBus() *Bus {
	return &Bus{adapters: make(map[string]*Adapter)}
}

func (b *Bus) register(a *Adapter) {
	b.mu.Lock()
	b.adapters[a.FileID()] = a
	b.mu.Unlock()
}

func (b *Bus) unregister(a *Adapter) {
	b.mu.Lock()
	if b.adapters[a.FileID()] == a {
		delete(b.adapters, a.FileID())
	}
	b.mu.Unlock()
}

// Send delivers cmd and waits until it has been applied.
func (b *Bus) Send(ctx context.Context, cmd Command) error {
	b.mu.RLock()
	a := b.adapters[cmd.Target()]
	b.mu.RUnlock()
	if a == nil {
		return fmt.Errorf("%w: %s", ErrNotMounted, cmd.Target())
	}
	return a.Apply(ctx, cmd)
}

// Apply runs cmd against the live instance. Commands the editor cannot apply
// are logged and returned wrapped in ErrIgnored; the instance is left as it was.
func (a *Adapter) Apply(ctx context.Context, cmd Command) error {
	return a.Do(ctx, func(inst Instance) error {
		err := applyCommand(inst, cmd)
		if errors.Is(err, ErrDisposed) {
			return ErrNotMounted
		}
		if err != nil {
			a.log.Warn("command ignored", map[string]any{"command": fmt.Sprintf("%T", cmd), "error": err.Error()})
			return fmt.Errorf("%w: %w", ErrIgnored, err)
		}
		return nil
	})
}

func applyCommand(inst Instance, cmd Command) error {
	switch c := cmd.(type) {
	case InsertMarker:
		switch ed := inst.(type) {
		case TextAppender:
			text := c.Text
			if text == "" {
				text = DocMarker
			}
			return ed.AppendText(text)
		case CellSetter:
			return ed.SetCell(0, 0, SheetMarker)
		}
	case SetCell:
		ed, ok := inst.(CellSetter)
		if !ok {
			break
		}
		row, col, err := ParseA1(c.Cell)
		if err != nil {
			return err
		}
		return ed.SetCell(row, col, c.Value)
	}
	return fmt.Errorf("%w: %T", ErrUnsupported, cmd)
}
