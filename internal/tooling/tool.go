// Package tooling declares the tools offered to the model and validates the
// arguments it sends back.
package tooling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Tool interface {
	Definition() ToolDefinition
	Call(ctx context.Context, args map[string]any) (string, error)
}

type Registry struct {
	tools       map[string]Tool
	definitions []ToolDefinition
}

func NewRegistry(tools ...Tool) *Registry {
	bucket := make(map[string]Tool, len(tools))
	defs := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition()
		bucket[def.Function.Name] = tool
		defs = append(defs, def)
	}
	return &Registry{tools: bucket, definitions: defs}
}

func (r *Registry) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Call decodes the model's JSON arguments and runs the named tool.
func (r *Registry) Call(ctx context.Context, name, arguments string) (string, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	args, err := DecodeArgs(arguments)
	if err != nil {
		return "", err
	}
	return tool.Call(ctx, args)
}

// DecodeArgs parses a tool call's argument string. Empty means no arguments.
func DecodeArgs(arguments string) (map[string]any, error) {
	args := map[string]any{}
	if arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// FromMCP converts an mcp-go tool declaration into an OpenAI function definition.
func FromMCP(tool mcp.Tool) ToolDefinition {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	if raw, err := json.Marshal(tool.InputSchema); err == nil {
		var decoded map[string]any
		if json.Unmarshal(raw, &decoded) == nil && decoded != nil {
			params = decoded
		}
	}
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		},
	}
}

func stringArg(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok || val == nil {
		return "", false
	}
	switch cast := val.(type) {
	case string:
		return cast, true
	default:
		return fmt.Sprintf("%v", cast), true
	}
}

func requiredString(args map[string]any, key string) (string, error) {
	v, ok := stringArg(args, key)
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}
