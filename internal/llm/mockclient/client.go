package mockclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"aira/internal/llm"
)

// Step is one scripted reply.
type Step struct {
	Response llm.ChatResponse
	Err      error
}

// Client is a deterministic llm.Client used for tests and offline runs. It
// plays back its script, then echoes the last user message.
type Client struct {
	prefix string

	mu       sync.Mutex
	script   []Step
	requests []llm.ChatRequest
}

// New returns a mock client that echoes the last user message.
func New() *Client {
	return &Client{prefix: "MOCK"}
}

// NewScripted returns a client that replies with steps in order.
func NewScripted(steps ...Step) *Client {
	return &Client{prefix: "MOCK", script: steps}
}

// Text builds a plain assistant reply.
func Text(content string) Step {
	return Step{Response: reply(llm.Message{Role: "assistant", Content: content}, "stop")}
}

// ToolCall builds a reply requesting one tool call.
func ToolCall(id, name, arguments string) Step {
	msg := llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: llm.FunctionCall{Name: name, Arguments: arguments},
		}},
	}
	return Step{Response: reply(msg, "tool_calls")}
}

// Requests returns every request received so far.
func (c *Client) Requests() []llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Chat satisfies the llm.Client interface.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	c.mu.Lock()
	c.requests = append(c.requests, req)
	if len(c.script) > 0 {
		step := c.script[0]
		c.script = c.script[1:]
		c.mu.Unlock()
		return step.Response, step.Err
	}
	c.mu.Unlock()

	response := llm.Message{Role: "assistant", Content: fmt.Sprintf("%s RESPONSE", c.prefix)}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		if last := strings.TrimSpace(req.Messages[i].Content); last != "" {
			response.Content = fmt.Sprintf("%s RESPONSE: %s", c.prefix, last)
		}
		break
	}
	return reply(response, "stop"), nil
}

func reply(msg llm.Message, finish string) llm.ChatResponse {
	return llm.ChatResponse{
		Choices: []llm.ChatChoice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   &llm.Usage{PromptTokens: 42, CompletionTokens: 7, TotalTokens: 49},
	}
}
