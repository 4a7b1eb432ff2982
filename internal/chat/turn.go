package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"aira/internal/server"
	"aira/internal/state"
)

// turn tracks one streamed response. The user message starts under a temp id
// and takes the server's id once the start frame arrives.
type turn struct {
	relay       *Relay
	userID      string
	assistantID string
	contextIDs  []string
	finished    bool
	err         error
}

// handle applies one frame and reports whether the stream is complete.
func (t *turn) handle(ctx context.Context, frameType string, data json.RawMessage) bool {
	r := t.relay
	ev := Event{Type: frameType, Data: data}
	switch frameType {
	case server.FrameStart:
		var start server.StartData
		_ = json.Unmarshal(data, &start)
		r.mu.Lock()
		if start.UserMessageID != "" && r.conv.RenameMessage(t.userID, start.UserMessageID) {
			t.userID = start.UserMessageID
		}
		if t.assistantID == "" {
			t.assistantID = start.MessageID
			if t.assistantID == "" {
				t.assistantID = uuid.NewString()
			}
			r.conv.Append(state.Message{ID: t.assistantID, Role: "assistant"})
		}
		r.mu.Unlock()

	case server.FrameText:
		var text server.TextData
		_ = json.Unmarshal(data, &text)
		t.update(func(m *state.Message) {
			m.Content += text.Text
			if n := len(m.Parts); n > 0 && m.Parts[n-1].Type == "text" {
				m.Parts[n-1].Text += text.Text
				return
			}
			m.Parts = append(m.Parts, state.Part{Type: "text", Text: text.Text})
		})

	case server.FrameToolCall:
		var call server.ToolCallData
		_ = json.Unmarshal(data, &call)
		t.update(func(m *state.Message) {
			m.Parts = append(m.Parts, state.Part{Type: "tool", Tool: &state.ToolInvocation{
				ToolCallID: call.ToolCallID,
				ToolName:   call.ToolName,
				Args:       call.Args,
				State:      state.ToolStateCall,
			}})
		})

	case server.FrameToolResult:
		var res server.ToolResultData
		_ = json.Unmarshal(data, &res)
		ev.Result = t.complete(ctx, res)

	case server.FrameError:
		var e server.ErrorData
		_ = json.Unmarshal(data, &e)
		t.err = errors.New(e.Message)
		t.update(func(m *state.Message) { m.Error = e.Message })

	case server.FrameFinish:
		t.finished = true
	}
	ev.MessageID = t.assistantID
	r.emit(ev)
	return t.finished
}

// complete dispatches the edit for a validated tool call and records the
// outcome on its invocation.
func (t *turn) complete(ctx context.Context, res server.ToolResultData) string {
	r := t.relay
	var args json.RawMessage
	r.mu.Lock()
	if msg, ok := r.conv.Message(t.assistantID); ok {
		for _, inv := range msg.Tools() {
			if inv.ToolCallID == res.ToolCallID {
				args = inv.Args
			}
		}
	}
	r.mu.Unlock()

	var result string
	switch {
	case res.Error != "":
		result = "rejected: " + res.Error
	case args == nil:
		result = "no matching tool call"
	default:
		result = r.apply(ctx, res.ToolName, args, t.contextIDs)
	}
	t.update(func(m *state.Message) {
		for i := range m.Parts {
			if tool := m.Parts[i].Tool; tool != nil && tool.ToolCallID == res.ToolCallID {
				tool.State = state.ToolStateResult
				tool.Result = result
			}
		}
	})
	return result
}

func (t *turn) update(fn func(*state.Message)) {
	r := t.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.assistantID == "" {
		t.assistantID = uuid.NewString()
		r.conv.Append(state.Message{ID: t.assistantID, Role: "assistant"})
	}
	r.conv.Update(t.assistantID, fn)
}

func (t *turn) fail(err error) {
	t.update(func(m *state.Message) {
		if m.Error == "" {
			m.Error = err.Error()
		}
	})
}

func (t *turn) result() state.Message {
	r := t.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, _ := r.conv.Message(t.assistantID)
	return msg
}
