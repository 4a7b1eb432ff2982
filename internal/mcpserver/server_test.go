package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"aira/internal/editor"
	"aira/internal/workspace"
)

func newTestServer(t *testing.T) (*server.MCPServer, *workspace.Store, *editor.Manager) {
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
	return New(Options{Version: "test", Store: store, Editors: editors}), store, editors
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	respBytes, err := json.Marshal(s.HandleMessage(context.Background(), reqJSON))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return &result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func TestCreateListAndRead(t *testing.T) {
	s, store, _ := newTestServer(t)

	res := callTool(t, s, "create_file", map[string]any{"name": "Plan", "type": "doc"})
	if res.IsError || !strings.HasPrefix(resultText(t, res), "created doc Plan") {
		t.Fatalf("create = %s", resultText(t, res))
	}
	callTool(t, s, "create_folder", map[string]any{"name": "Q3"})
	res = callTool(t, s, "move_file", map[string]any{"id": "plan", "folder": "Q3"})
	if res.IsError {
		t.Fatalf("move failed: %s", resultText(t, res))
	}

	var tree workspace.Tree
	if err := json.Unmarshal([]byte(resultText(t, callTool(t, s, "list_files", nil))), &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(tree.Folders) != 1 || len(tree.Folders[0].Files) != 1 || tree.Folders[0].Files[0].Name != "Plan" {
		t.Fatalf("tree = %+v", tree)
	}

	f := store.Files()[0]
	store.UpdateFile(f.ID, json.RawMessage(`{"body":{"dataStream":"hello\r\n"}}`))
	var read struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(resultText(t, callTool(t, s, "read_file", map[string]any{"id": f.ID}))), &read); err != nil {
		t.Fatalf("decode read: %v", err)
	}
	if read.ID != f.ID || read.Text != "hello" {
		t.Fatalf("read = %+v", read)
	}
}

func TestToolErrors(t *testing.T) {
	s, store, _ := newTestServer(t)
	store.CreateFile("Budget", workspace.KindSheet)
	cases := []struct {
		tool string
		args map[string]any
	}{
		{"create_file", map[string]any{"name": "x", "type": "slides"}},
		{"read_file", map[string]any{"id": "missing"}},
		{"delete_file", map[string]any{"id": "missing"}},
		{"move_file", map[string]any{"id": "missing"}},
		{"edit_sheet", map[string]any{"sheetId": "1", "cell": "A", "value": "x"}},
		{"edit_doc", map[string]any{"docId": "missing", "text": "x"}},
		{"edit_sheet", map[string]any{"sheetId": "Budget", "cell": "Z5000", "value": "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			res := callTool(t, s, tc.tool, tc.args)
			if !res.IsError {
				t.Fatalf("expected tool error, got %s", resultText(t, res))
			}
			if strings.HasPrefix(resultText(t, res), "applied to") {
				t.Fatalf("error result claims success: %s", resultText(t, res))
			}
		})
	}
}

func TestEditSheetDispatches(t *testing.T) {
	s, store, editors := newTestServer(t)
	sheet, _ := store.CreateFile("Budget", workspace.KindSheet)

	res := callTool(t, s, "edit_sheet", map[string]any{"sheetId": sheet.ID, "cell": "B2", "value": "12"})
	want := fmt.Sprintf("applied to Budget (%s)", sheet.ID)
	if res.IsError || resultText(t, res) != want {
		t.Fatalf("edit = %s", resultText(t, res))
	}
	text, err := editors.Text(sheet.ID)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "\n\t12\n" {
		t.Fatalf("sheet text = %q", text)
	}
}

func TestDeleteFile(t *testing.T) {
	s, store, _ := newTestServer(t)
	f, _ := store.CreateFile("Old", workspace.KindDoc)
	if res := callTool(t, s, "delete_file", map[string]any{"id": "Old"}); res.IsError {
		t.Fatalf("delete failed: %s", resultText(t, res))
	}
	if _, ok := store.File(f.ID); ok {
		t.Fatalf("file still present")
	}
}
