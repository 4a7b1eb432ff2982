// Package mcpserver exposes the workspace to MCP clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"aira/internal/chat"
	"aira/internal/editor"
	"aira/internal/logging"
	"aira/internal/tooling"
	"aira/internal/workspace"
)

const instructions = `Aira workspace tools. Files are documents (doc) or spreadsheets (sheet).
Use list_files to discover ids, read_file to see content, and edit_doc or edit_sheet to change a file.
Copy ids exactly as listed.`

// Options wires the MCP server.
type Options struct {
	Version string
	Store   *workspace.Store
	Editors chat.Dispatcher
	Engines editor.Engines
	// DocAppendModelText makes edit_doc append the given text instead of the marker.
	DocAppendModelText bool
	Logger             *log.Logger
}

type handler struct {
	store      *workspace.Store
	editors    chat.Dispatcher
	engines    editor.Engines
	appendText bool
	logger     *log.Logger
}

// New builds an MCP server with the workspace tools registered.
func New(opts Options) *server.MCPServer {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	engines := opts.Engines
	if engines == nil {
		engines = editor.DefaultEngines()
	}
	h := &handler{
		store:      opts.Store,
		editors:    opts.Editors,
		engines:    engines,
		appendText: opts.DocAppendModelText,
		logger:     logging.OrDiscard(opts.Logger),
	}
	s := server.NewMCPServer("aira", version, server.WithInstructions(instructions))
	h.register(s)
	return s
}

// Serve runs s over in and out until ctx ends or the client disconnects.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func (h *handler) register(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("list_files",
			mcp.WithDescription("List folders and files in the workspace, with ids, types and open tabs."),
		),
		h.listFiles,
	)
	s.AddTool(
		mcp.NewTool("read_file",
			mcp.WithDescription("Read a file by id or name. Returns plain text and the raw editor snapshot."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id or name")),
		),
		h.readFile,
	)
	s.AddTool(
		mcp.NewTool("create_file",
			mcp.WithDescription("Create an empty document or spreadsheet."),
			mcp.WithString("name", mcp.Required(), mcp.Description("File name")),
			mcp.WithString("type", mcp.Required(), mcp.Description("doc or sheet"), mcp.Enum("doc", "sheet")),
		),
		h.createFile,
	)
	s.AddTool(
		mcp.NewTool("create_folder",
			mcp.WithDescription("Create a folder."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Folder name")),
		),
		h.createFolder,
	)
	s.AddTool(
		mcp.NewTool("move_file",
			mcp.WithDescription("Move a file into a folder, or to the root when folder is empty."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id or name")),
			mcp.WithString("folder", mcp.Description("Folder id or name; empty for the root")),
		),
		h.moveFile,
	)
	s.AddTool(
		mcp.NewTool("delete_file",
			mcp.WithDescription("Delete a file."),
			mcp.WithString("id", mcp.Required(), mcp.Description("File id or name")),
		),
		h.deleteFile,
	)
	s.AddTool(tooling.EditDocSpec(), h.editDoc)
	s.AddTool(tooling.EditSheetSpec(), h.editSheet)
}

func (h *handler) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.store.Tree())
}

func (h *handler) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, _ := req.GetArguments()["id"].(string)
	f, ok := h.store.FindFile(ref)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no file %q", ref)), nil
	}
	return jsonResult(map[string]any{
		"id":      f.ID,
		"name":    f.Name,
		"type":    f.Kind,
		"text":    h.engines.PlainText(f),
		"content": f.Content,
	})
}

func (h *handler) createFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, _ := args["name"].(string)
	typ, _ := args["type"].(string)
	kind, err := workspace.ParseKind(typ)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := h.store.CreateFile(name, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h.logger.Printf("mcp: created %s %q (%s)", f.Kind, f.Name, f.ID)
	return mcp.NewToolResultText(fmt.Sprintf("created %s %s (%s)", f.Kind, f.Name, f.ID)), nil
}

func (h *handler) createFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := req.GetArguments()["name"].(string)
	folder, err := h.store.CreateFolder(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created folder %s (%s)", folder.Name, folder.ID)), nil
}

func (h *handler) moveFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	ref, _ := args["id"].(string)
	folderRef, _ := args["folder"].(string)
	f, ok := h.store.FindFile(ref)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no file %q", ref)), nil
	}
	var parent *string
	where := "root"
	if folderRef != "" {
		folder, ok := h.store.FindFolder(folderRef)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("no folder %q", folderRef)), nil
		}
		parent = &folder.ID
		where = folder.Name
	}
	if err := h.store.UpdateFileParent(f.ID, parent); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved %s to %s", f.Name, where)), nil
}

func (h *handler) deleteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, _ := req.GetArguments()["id"].(string)
	f, ok := h.store.FindFile(ref)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no file %q", ref)), nil
	}
	h.store.DeleteFile(f.ID)
	return mcp.NewToolResultText(fmt.Sprintf("deleted %s (%s)", f.Name, f.ID)), nil
}

func (h *handler) editDoc(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := tooling.ParseEditDoc(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.dispatch(ctx, args.DocID, workspace.KindDoc, func(f workspace.File) editor.Command {
		cmd := editor.InsertMarker{FileID: f.ID}
		if h.appendText {
			cmd.Text = args.Text
		}
		return cmd
	})
}

func (h *handler) editSheet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := tooling.ParseEditSheet(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.dispatch(ctx, args.SheetID, workspace.KindSheet, func(f workspace.File) editor.Command {
		return editor.SetCell{FileID: f.ID, Cell: args.Cell, Value: args.Value}
	})
}

func (h *handler) dispatch(ctx context.Context, ident string, kind workspace.Kind, build func(workspace.File) editor.Command) (*mcp.CallToolResult, error) {
	target, ok := chat.Resolve(h.store.Files(), nil, ident, kind)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no matching file for %q", ident)), nil
	}
	if h.editors == nil {
		return nil, errors.New("no editors attached")
	}
	if err := h.editors.Dispatch(ctx, build(target)); errors.Is(err, editor.ErrIgnored) {
		return mcp.NewToolResultError(fmt.Sprintf("ignored by %s (%s): %s", target.Name, target.ID, err)), nil
	} else if err != nil {
		return mcp.NewToolResultError("dispatch failed: " + err.Error()), nil
	}
	h.logger.Printf("mcp: edit applied to %s", target.ID)
	return mcp.NewToolResultText(fmt.Sprintf("applied to %s (%s)", target.Name, target.ID)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
