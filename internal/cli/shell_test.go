package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aira/internal/chat"
	"aira/internal/config"
	"aira/internal/editor"
	"aira/internal/llm"
	"aira/internal/llm/mockclient"
	"aira/internal/server"
	"aira/internal/state"
	"aira/internal/workspace"
)

type shellFixture struct {
	store   *workspace.Store
	editors *editor.Manager
	client  *mockclient.Client
	shell   *shell
	out     *bytes.Buffer
}

func newShellFixture(t *testing.T, steps ...mockclient.Step) *shellFixture {
	t.Helper()
	store, err := workspace.NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	editors := editor.NewManager(store, editor.ManagerOptions{Interval: time.Hour, Debounce: 5 * time.Millisecond})
	t.Cleanup(func() {
		editors.Close()
		_ = store.Close()
	})
	client := mockclient.NewScripted(steps...)
	srv := server.New(server.Options{
		Config:  config.Default(),
		Client:  client,
		Store:   store,
		Editors: editors,
		Retry:   llm.RetryPolicy{InitialDelay: time.Millisecond},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	history, err := state.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("state.NewManager: %v", err)
	}
	out := &bytes.Buffer{}
	sh, err := newShell(shellOptions{
		Store:   store,
		Editors: editors,
		History: history,
		Relay: chat.Options{
			Endpoint: ts.URL,
			Store:    store,
			Editors:  editors,
			History:  history,
		},
		Out: out,
	})
	if err != nil {
		t.Fatalf("newShell: %v", err)
	}
	t.Cleanup(sh.close)
	return &shellFixture{store: store, editors: editors, client: client, shell: sh, out: out}
}

// exec runs one line and returns what it printed.
func (fx *shellFixture) exec(t *testing.T, line string) string {
	t.Helper()
	fx.out.Reset()
	if exit := fx.shell.handleLine(context.Background(), line); exit {
		t.Fatalf("%q asked to exit", line)
	}
	return fx.out.String()
}

func TestShellWorkspaceCommands(t *testing.T) {
	fx := newShellFixture(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{":new sheet Budget", "Created sheet"},
		{":new doc Notes", "Notes"},
		{":folder Q3", "Created folder"},
		{":move Budget Q3", "Q3/"},
		{":tabs", "Notes"},
		{":set Budget B2 12", "+ "},
		{":write notes hello there", "hello there"},
		{":write more text", "more text"},
		{":show Budget", "12"},
		{":open Budget", "Budget"},
		{":set C1 7", "+ "},
		{":close", "Notes"},
		{":ctx Budget", "context: Budget"},
		{":ctx", "Budget"},
		{":ctx clear", "no context files"},
		{":mode ask", "Mode: Ask"},
		{":mode", "Mode: Ask"},
		{":files", "Budget"},
		{":help", ":retry"},
	}
	for _, tt := range tests {
		if got := fx.exec(t, tt.line); !strings.Contains(got, tt.want) {
			t.Fatalf("%s printed %q, want it to contain %q", tt.line, got, tt.want)
		}
	}

	text, err := fx.editors.Text(mustFind(t, fx.store, "Budget").ID)
	if err != nil || !strings.Contains(text, "12") || !strings.Contains(text, "7") {
		t.Fatalf("sheet text = %q (%v)", text, err)
	}
	if f := mustFind(t, fx.store, "Budget"); f.ParentFolderID == nil {
		t.Fatalf("Budget was not moved into Q3")
	}
	if fx.shell.handleLine(ctx, ":quit") != true {
		t.Fatalf(":quit should exit")
	}
}

func TestShellCommandErrors(t *testing.T) {
	fx := newShellFixture(t)
	fx.store.CreateFile("Plan", workspace.KindDoc)

	tests := []struct {
		line string
		want string
	}{
		{":new slides Deck", "kind must be doc or sheet"},
		{":new doc", ":new requires"},
		{":open Missing", "no file named Missing"},
		{":set Plan A1 x", "no spreadsheet"},
		{":write", ":write requires"},
		{":move Plan Nowhere", "no folder named Nowhere"},
		{":mode chatty", "mode"},
		{":retry", "nothing to retry"},
		{":bogus", "unknown command"},
	}
	for _, tt := range tests {
		if got := fx.exec(t, tt.line); !strings.Contains(got, tt.want) {
			t.Fatalf("%s printed %q, want it to contain %q", tt.line, got, tt.want)
		}
	}
}

func TestShellChatTurnShowsToolActivityAndDiff(t *testing.T) {
	fx := newShellFixture(t,
		mockclient.ToolCall("call_1", "edit_sheet", `{"sheetId":"budget","cell":"A2","value":"rent"}`),
		mockclient.Text("Added the rent row."),
	)
	fx.exec(t, ":new sheet Budget")
	fx.exec(t, ":ctx Budget")

	out := fx.exec(t, "add rent to the budget")
	for _, want := range []string{"-> edit_sheet", "applied to Budget", "Added the rent row.", "~ Budget", "+ "} {
		if !strings.Contains(out, want) {
			t.Fatalf("turn output missing %q:\n%s", want, out)
		}
	}
	if n := len(fx.client.Requests()); n != 2 {
		t.Fatalf("model requests = %d, want 2", n)
	}

	// the script is spent; the mock now echoes
	out = fx.exec(t, ":retry")
	if !strings.Contains(out, "MOCK RESPONSE: add rent to the budget") {
		t.Fatalf("retry output:\n%s", out)
	}
	if msgs := fx.shell.relay.Messages(); len(msgs) != 4 {
		t.Fatalf("messages after retry = %d, want 4", len(msgs))
	}
}

func TestShellSessionsSwitchConversation(t *testing.T) {
	fx := newShellFixture(t, mockclient.Text("first"))
	fx.exec(t, "hello")
	if out := fx.exec(t, ":use planning"); !strings.Contains(out, "Switched to planning") {
		t.Fatalf(":use output %q", out)
	}
	if msgs := fx.shell.relay.Messages(); len(msgs) != 0 {
		t.Fatalf("new conversation has %d messages", len(msgs))
	}
	out := fx.exec(t, ":sessions")
	if !strings.Contains(out, "planning *") || !strings.Contains(out, "2 messages") {
		t.Fatalf(":sessions output:\n%s", out)
	}
	fx.exec(t, ":mode ask")
	fx.exec(t, ":use chat-1")
	if fx.shell.relay.Mode() != config.ModeAsk {
		t.Fatalf("mode not carried across conversations")
	}
	if msgs := fx.shell.relay.Messages(); len(msgs) != 2 {
		t.Fatalf("chat-1 has %d messages, want 2", len(msgs))
	}
	fx.exec(t, ":clear")
	if msgs := fx.shell.relay.Messages(); len(msgs) != 0 {
		t.Fatalf(":clear left %d messages", len(msgs))
	}
}

func TestRunNonInteractive(t *testing.T) {
	fx := newShellFixture(t)
	in := strings.NewReader(":new doc Plan\n:files\n:quit\n:files\n")
	if err := fx.shell.runNonInteractive(context.Background(), in); err != nil {
		t.Fatalf("runNonInteractive: %v", err)
	}
	out := fx.out.String()
	if !strings.Contains(out, "Welcome to aira") || !strings.Contains(out, "Plan") {
		t.Fatalf("output:\n%s", out)
	}
	if strings.Count(out, "[doc]") != 1 {
		t.Fatalf("commands after :quit ran:\n%s", out)
	}
}

func TestInputHistoryPersistsAndSkipsRepeats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".history")
	h := loadInputHistory(path)
	h.Add(":files")
	h.Add(":files")
	h.Add("  ")
	h.Add("hello")
	if got := h.Entries(); len(got) != 2 {
		t.Fatalf("entries = %v", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if string(data) != ":files\nhello\n" {
		t.Fatalf("history file = %q", data)
	}
	reloaded := loadInputHistory(path)
	if got := reloaded.Entries(); len(got) != 2 || got[1] != "hello" {
		t.Fatalf("reloaded = %v", got)
	}
}

func TestInterruptTrackerNeedsTwoPresses(t *testing.T) {
	tr := newInterruptTracker(time.Second)
	if tr.secondPress() {
		t.Fatalf("first press reported as second")
	}
	if !tr.secondPress() {
		t.Fatalf("second press within the window not detected")
	}
	if tr.secondPress() {
		t.Fatalf("tracker did not reset after a second press")
	}
}

func mustFind(t *testing.T, store *workspace.Store, ref string) workspace.File {
	t.Helper()
	f, ok := store.FindFile(ref)
	if !ok {
		t.Fatalf("no file %q", ref)
	}
	return f
}
