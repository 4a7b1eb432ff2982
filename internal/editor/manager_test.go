package editor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"aira/internal/workspace"
)

func newTestManager(t *testing.T) (*Manager, *workspace.Store) {
	t.Helper()
	store, err := workspace.NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	m := NewManager(store, ManagerOptions{Interval: time.Hour, Debounce: 10 * time.Millisecond})
	t.Cleanup(func() {
		m.Close()
		_ = store.Close()
	})
	return m, store
}

func TestBusDeliversToMountedAdapter(t *testing.T) {
	m, store := newTestManager(t)
	doc, _ := store.CreateFile("Notes", workspace.KindDoc)
	m.Sync()

	if err := m.Bus().Send(context.Background(), InsertMarker{FileID: doc.ID}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	text, err := m.Text(doc.ID)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "\nUsed by AI" {
		t.Fatalf("text = %q", text)
	}

	store.CloseTab(doc.ID)
	m.Sync()
	if len(m.Mounted()) != 0 {
		t.Fatalf("adapter still mounted after tab close")
	}
	f, _ := store.File(doc.ID)
	if !strings.Contains(string(f.Content), `Used by AI`) {
		t.Fatalf("unmount did not flush: %s", f.Content)
	}
}

func TestBusSendUnmounted(t *testing.T) {
	bus := NewBus()
	err := bus.Send(context.Background(), InsertMarker{FileID: "nope"})
	if !errors.Is(err, ErrNotMounted) {
		t.Fatalf("err = %v, want ErrNotMounted", err)
	}
}

func TestDispatchMountsTransiently(t *testing.T) {
	m, store := newTestManager(t)
	sheet, _ := store.CreateFile("Budget", workspace.KindSheet)
	store.CloseTab(sheet.ID)

	if err := m.Dispatch(context.Background(), SetCell{FileID: sheet.ID, Cell: "C3", Value: "7"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(m.Mounted()) != 0 {
		t.Fatalf("transient adapter left mounted")
	}
	f, _ := store.File(sheet.ID)
	inst, err := SheetEngine{}.Load(f.ID, f.Content)
	if err != nil {
		t.Fatalf("stored content does not load: %v (%s)", err, f.Content)
	}
	if v, ok := inst.(CellSetter).Cell(2, 2); !ok || v != "7" {
		t.Fatalf("C3 = %q (%v)", v, ok)
	}
}

func TestDispatchUnknownFile(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Dispatch(context.Background(), InsertMarker{FileID: "404"})
	if !errors.Is(err, workspace.ErrUnknownFile) {
		t.Fatalf("err = %v, want ErrUnknownFile", err)
	}
}

func TestBadAddressIsIgnored(t *testing.T) {
	m, store := newTestManager(t)
	sheet, _ := store.CreateFile("Budget", workspace.KindSheet)
	m.Sync()
	ctx := context.Background()

	for _, cell := range []string{"ZZ", "A0", "ZZZ99999"} {
		if err := m.Dispatch(ctx, SetCell{FileID: sheet.ID, Cell: cell, Value: "x"}); !errors.Is(err, ErrIgnored) {
			t.Fatalf("Dispatch(%s) = %v, want ErrIgnored", cell, err)
		}
	}
	text, _ := m.Text(sheet.ID)
	if text != "" {
		t.Fatalf("bad addresses modified the sheet: %q", text)
	}
}

func TestOutOfRangeCellIsIgnored(t *testing.T) {
	m, store := newTestManager(t)
	sheet, _ := store.CreateFile("Budget", workspace.KindSheet)
	m.Sync()
	err := m.Dispatch(context.Background(), SetCell{FileID: sheet.ID, Cell: "Z5000", Value: "x"})
	if !errors.Is(err, ErrIgnored) || !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Dispatch = %v, want ErrIgnored wrapping ErrOutOfRange", err)
	}
	if text, _ := m.Text(sheet.ID); text != "" {
		t.Fatalf("sheet text = %q", text)
	}
}

func TestInsertMarkerOnSheetWritesA1(t *testing.T) {
	m, store := newTestManager(t)
	sheet, _ := store.CreateFile("Budget", workspace.KindSheet)
	m.Sync()
	if err := m.Dispatch(context.Background(), InsertMarker{FileID: sheet.ID}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var got string
	err := m.Edit(context.Background(), sheet.ID, func(inst Instance) error {
		got, _ = inst.(CellSetter).Cell(0, 0)
		return nil
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got != SheetMarker {
		t.Fatalf("A1 = %q", got)
	}
}

func TestSetCellOnDocIsIgnored(t *testing.T) {
	m, store := newTestManager(t)
	doc, _ := store.CreateFile("Notes", workspace.KindDoc)
	m.Sync()
	err := m.Dispatch(context.Background(), SetCell{FileID: doc.ID, Cell: "A1", Value: "x"})
	if !errors.Is(err, ErrIgnored) || !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Dispatch = %v, want ErrIgnored wrapping ErrUnsupported", err)
	}
}

func TestWatchMountsOpenedTabs(t *testing.T) {
	m, store := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Watch(ctx)

	doc, _ := store.CreateFile("Notes", workspace.KindDoc)
	deadline := time.Now().Add(time.Second)
	for len(m.Mounted()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ids := m.Mounted(); len(ids) != 1 || ids[0] != doc.ID {
		t.Fatalf("mounted = %v", ids)
	}
}

func TestManagerCloseFlushes(t *testing.T) {
	store, _ := workspace.NewStore(nil, nil)
	defer store.Close()
	m := NewManager(store, ManagerOptions{Interval: time.Hour})
	doc, _ := store.CreateFile("Notes", workspace.KindDoc)
	m.Sync()
	_ = m.Edit(context.Background(), doc.ID, func(inst Instance) error {
		return inst.(TextAppender).AppendText("draft")
	})
	m.Close()

	f, _ := store.File(doc.ID)
	var snap struct {
		Body struct {
			DataStream string `json:"dataStream"`
		} `json:"body"`
	}
	if err := json.Unmarshal(f.Content, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Body.DataStream != "draft\r\n" {
		t.Fatalf("dataStream = %q", snap.Body.DataStream)
	}
}
