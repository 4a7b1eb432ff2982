package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"aira/internal/config"
	"aira/internal/llm"
	"aira/internal/prompts"
	"aira/internal/tooling"
)

// Frame types streamed by /api/chat.
const (
	FrameStart      = "start"
	FrameText       = "text"
	FrameToolCall   = "tool_call"
	FrameToolResult = "tool_result"
	FrameStep       = "step"
	FrameRetry      = "retry"
	FrameError      = "error"
	FrameFinish     = "finish"
)

// FinishMaxSteps ends an Agent turn whose step budget ran out mid tool use.
const FinishMaxSteps = "max_steps"

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage         `json:"messages"`
	Context  []prompts.ContextFile `json:"context,omitempty"`
	Mode     string                `json:"mode,omitempty"`
}

type ChatMessage struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StartData struct {
	MessageID     string `json:"messageId"`
	UserMessageID string `json:"userMessageId"`
}

type TextData struct {
	Text string `json:"text"`
}

type ToolCallData struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type ToolResultData struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

type StepData struct {
	Step         int    `json:"step"`
	FinishReason string `json:"finishReason"`
}

type ErrorData struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type FinishData struct {
	FinishReason string     `json:"finishReason"`
	Usage        *llm.Usage `json:"usage,omitempty"`
}

type sendFunc func(eventType string, data any) error

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		s.respondError(w, r, http.StatusServiceUnavailable, "no model client configured")
		return
	}
	var req ChatRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.respondError(w, r, http.StatusBadRequest, "messages are required")
		return
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			s.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("unsupported role %q", m.Role))
			return
		}
	}
	mode := config.ModeAsk
	if strings.TrimSpace(req.Mode) != "" {
		if mode = config.NormalizeMode(req.Mode); mode == "" {
			s.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sendEvent := func(eventType string, data any) error {
		payload, err := json.Marshal(map[string]any{"type": eventType, "data": data})
		if err != nil {
			s.logRequestError(r, http.StatusInternalServerError, fmt.Sprintf("stream marshal %s event failed: %v", eventType, err))
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			s.logRequestError(r, http.StatusInternalServerError, fmt.Sprintf("stream write %s event failed: %v", eventType, err))
			return err
		}
		flusher.Flush()
		return nil
	}

	ctx := r.Context()
	if timeout := s.cfg.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.streamChat(ctx, req, mode, sendEvent)
}

func (s *Server) streamChat(ctx context.Context, req ChatRequest, mode string, send sendFunc) {
	userID := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			userID = req.Messages[i].ID
			break
		}
	}
	// Clients send provisional ids; the start frame hands out the permanent one.
	if userID == "" || strings.HasPrefix(userID, "temp-") {
		userID = uuid.NewString()
	}
	if err := send(FrameStart, StartData{MessageID: uuid.NewString(), UserMessageID: userID}); err != nil {
		return
	}

	agent := mode == config.ModeAgent
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	if system := prompts.BuildSystem(req.Context, prompts.Options{Agent: agent, CharLimit: s.cfg.ContextCharLimit}); system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	maxSteps := 1
	var tools []tooling.ToolDefinition
	if agent {
		maxSteps = s.cfg.MaxAgentSteps
		if maxSteps <= 0 {
			maxSteps = config.DefaultMaxAgentSteps
		}
		tools = s.tools.Definitions()
	}
	s.logger.Printf("chat: mode=%s messages=%d context=%d", mode, len(req.Messages), len(req.Context))

	policy := s.retry
	policy.OnRetry = func(e llm.RetryEvent) { _ = send(FrameRetry, e) }

	var usage llm.Usage
	haveUsage := false
	finish := "stop"
	for step := 1; step <= maxSteps; step++ {
		resp, err := llm.ChatWithRetry(ctx, s.client, llm.ChatRequest{
			Model:       s.cfg.Model,
			Messages:    messages,
			Tools:       tools,
			Temperature: s.cfg.Temperature,
		}, policy)
		if err == nil && len(resp.Choices) == 0 {
			err = errors.New("no choices returned")
		}
		if err != nil {
			s.sendFailure(ctx, err, send)
			return
		}
		if resp.Usage != nil {
			haveUsage = true
			usage.PromptTokens += resp.Usage.PromptTokens
			usage.CompletionTokens += resp.Usage.CompletionTokens
			usage.TotalTokens += resp.Usage.TotalTokens
		}
		choice := resp.Choices[0]
		finish = choice.FinishReason
		if finish == "" {
			finish = "stop"
		}
		if choice.Message.Content != "" {
			if err := send(FrameText, TextData{Text: choice.Message.Content}); err != nil {
				return
			}
		}
		if choice.Message.Role == "" {
			choice.Message.Role = "assistant"
		}
		messages = append(messages, choice.Message)

		calls := choice.Message.ToolCalls
		if !agent || len(calls) == 0 {
			_ = send(FrameStep, StepData{Step: step, FinishReason: finish})
			break
		}
		for _, call := range calls {
			messages = append(messages, s.runTool(ctx, call, send))
		}
		_ = send(FrameStep, StepData{Step: step, FinishReason: finish})
		if step == maxSteps {
			finish = FinishMaxSteps
		}
	}

	data := FinishData{FinishReason: finish}
	if haveUsage {
		data.Usage = &usage
	}
	_ = send(FrameFinish, data)
}

// runTool validates a tool call, streams it and its result, and returns the
// tool message for the next step.
func (s *Server) runTool(ctx context.Context, call llm.ToolCall, send sendFunc) llm.Message {
	args := json.RawMessage(call.Function.Arguments)
	if !json.Valid(args) {
		quoted, _ := json.Marshal(call.Function.Arguments)
		args = quoted
	}
	_ = send(FrameToolCall, ToolCallData{ToolCallID: call.ID, ToolName: call.Function.Name, Args: args})

	result, err := s.tools.Call(ctx, call.Function.Name, call.Function.Arguments)
	data := ToolResultData{ToolCallID: call.ID, ToolName: call.Function.Name, Result: result}
	content := result
	if err != nil {
		data.Error = err.Error()
		content = "error: " + err.Error()
		s.logger.Printf("chat: tool %s rejected: %v", call.Function.Name, err)
	}
	_ = send(FrameToolResult, data)
	return llm.Message{Role: "tool", ToolCallID: call.ID, Name: call.Function.Name, Content: content}
}

func (s *Server) sendFailure(ctx context.Context, err error, send sendFunc) {
	data := ErrorData{Message: err.Error()}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		data = ErrorData{Message: "request timed out", Type: "timeout"}
	case errors.Is(err, context.Canceled):
		s.logger.Printf("chat: request cancelled")
		return
	}
	if pe, ok := llm.IsProviderError(err); ok {
		data = ErrorData{Message: pe.Message, Type: string(pe.Type)}
	}
	s.logger.Printf("chat: model call failed: %v", err)
	_ = send(FrameError, data)
	_ = send(FrameFinish, FinishData{FinishReason: "error"})
}
