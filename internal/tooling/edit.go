package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	EditDocName   = "edit_doc"
	EditSheetName = "edit_sheet"
)

var cellPattern = regexp.MustCompile(`^[A-Za-z]+[0-9]+$`)

// EditDocArgs appends text to a document.
type EditDocArgs struct {
	DocID string `json:"docId"`
	Text  string `json:"text"`
}

// EditSheetArgs writes one cell of a spreadsheet.
type EditSheetArgs struct {
	SheetID string `json:"sheetId"`
	Cell    string `json:"cell"`
	Value   string `json:"value"`
}

// EditDocSpec is the edit_doc declaration shared by the chat endpoint and the MCP server.
func EditDocSpec() mcp.Tool {
	return mcp.NewTool(EditDocName,
		mcp.WithDescription("Append text to the end of a document. Use the exact file id shown in the context header."),
		mcp.WithString("docId", mcp.Required(), mcp.Description("Id of the document to edit, copied verbatim")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to append")),
	)
}

// EditSheetSpec is the edit_sheet declaration shared by the chat endpoint and the MCP server.
func EditSheetSpec() mcp.Tool {
	return mcp.NewTool(EditSheetName,
		mcp.WithDescription("Set one cell of a spreadsheet's first sheet. Use the exact file id shown in the context header."),
		mcp.WithString("sheetId", mcp.Required(), mcp.Description("Id of the spreadsheet to edit, copied verbatim")),
		mcp.WithString("cell", mcp.Required(), mcp.Pattern(cellPattern.String()), mcp.Description("Cell address in A1 notation, e.g. C3")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Value to write; numbers are stored as numbers")),
	)
}

// ParseEditDoc validates edit_doc arguments.
func ParseEditDoc(args map[string]any) (EditDocArgs, error) {
	var out EditDocArgs
	var err error
	if out.DocID, err = requiredString(args, "docId"); err != nil {
		return out, err
	}
	if out.Text, err = requiredString(args, "text"); err != nil {
		return out, err
	}
	return out, nil
}

// ParseEditSheet validates edit_sheet arguments. Only the shape of the cell
// address is checked; bounds are the editor's concern.
func ParseEditSheet(args map[string]any) (EditSheetArgs, error) {
	var out EditSheetArgs
	var err error
	if out.SheetID, err = requiredString(args, "sheetId"); err != nil {
		return out, err
	}
	if out.Cell, err = requiredString(args, "cell"); err != nil {
		return out, err
	}
	out.Cell = strings.TrimSpace(out.Cell)
	if !cellPattern.MatchString(out.Cell) {
		return out, fmt.Errorf("cell %q must look like A1", out.Cell)
	}
	if out.Value, err = requiredString(args, "value"); err != nil {
		return out, err
	}
	return out, nil
}

// EditDocTool is executed by the client; the server only acknowledges it.
type EditDocTool struct{}

func (EditDocTool) Definition() ToolDefinition { return FromMCP(EditDocSpec()) }

func (EditDocTool) Call(_ context.Context, args map[string]any) (string, error) {
	parsed, err := ParseEditDoc(args)
	if err != nil {
		return "", err
	}
	return acknowledge(EditDocName, parsed)
}

// EditSheetTool is executed by the client; the server only acknowledges it.
type EditSheetTool struct{}

func (EditSheetTool) Definition() ToolDefinition { return FromMCP(EditSheetSpec()) }

func (EditSheetTool) Call(_ context.Context, args map[string]any) (string, error) {
	parsed, err := ParseEditSheet(args)
	if err != nil {
		return "", err
	}
	return acknowledge(EditSheetName, parsed)
}

// EditTools returns the definitions offered in Agent mode.
func EditTools() []ToolDefinition {
	return NewEditRegistry().Definitions()
}

// NewEditRegistry registers edit_doc and edit_sheet.
func NewEditRegistry() *Registry {
	return NewRegistry(EditDocTool{}, EditSheetTool{})
}

func acknowledge(tool string, args any) (string, error) {
	data, err := json.Marshal(map[string]any{
		"status": "deferred",
		"tool":   tool,
		"args":   args,
		"note":   "the edit is applied by the client",
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
