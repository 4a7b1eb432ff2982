// Package chat is the client side of the chat endpoint: it keeps the
// conversation, sends context files with each turn and applies the edits the
// model requests to the addressed editors.
package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"aira/internal/config"
	"aira/internal/editor"
	"aira/internal/logging"
	"aira/internal/prompts"
	"aira/internal/server"
	"aira/internal/state"
	"aira/internal/tooling"
	"aira/internal/workspace"
)

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrBusy       = errors.New("a request is already running")
	// ErrUnknownMessage is returned by Retry for an id not in the history.
	ErrUnknownMessage = errors.New("unknown message")
)

// Dispatcher delivers edit commands to editors.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd editor.Command) error
}

// Event is a frame from the stream, forwarded to subscribers as it arrives.
// Result is set on tool_result events to what the relay did with the call.
type Event struct {
	Type      string
	MessageID string
	Data      json.RawMessage
	Result    string
}

// Options wires a Relay.
type Options struct {
	// Endpoint is the server base URL, e.g. http://127.0.0.1:3737.
	Endpoint   string
	HTTPClient *http.Client
	Store      *workspace.Store
	Editors    Dispatcher
	History    *state.Manager
	// Conversation defaults to History.Current().
	Conversation *state.Conversation
	Mode         string
	// DocAppendModelText makes edit_doc append the model's text instead of the marker.
	DocAppendModelText bool
	Logger             *log.Logger
	JSONLogs           bool
}

// Relay runs one chat turn at a time against the endpoint.
type Relay struct {
	endpoint   string
	httpClient *http.Client
	store      *workspace.Store
	editors    Dispatcher
	history    *state.Manager
	appendText bool
	log        *logging.StructuredLogger
	now        func() time.Time

	mu       sync.Mutex
	conv     *state.Conversation
	mode     string
	selected []string
	cancel   context.CancelFunc
	subs     map[int]func(Event)
	nextSub  int
}

func NewRelay(opts Options) (*Relay, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("relay endpoint must be set")
	}
	if opts.Store == nil {
		return nil, errors.New("relay needs a workspace store")
	}
	conv := opts.Conversation
	if conv == nil && opts.History != nil {
		conv = opts.History.Current()
	}
	if conv == nil {
		return nil, errors.New("relay needs a conversation or a history manager")
	}
	mode := config.NormalizeMode(opts.Mode)
	if mode == "" {
		mode = config.ModeAgent
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Relay{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		httpClient: httpClient,
		store:      opts.Store,
		editors:    opts.Editors,
		history:    opts.History,
		appendText: opts.DocAppendModelText,
		log:        logging.NewStructuredLogger(opts.Logger, "relay", opts.JSONLogs),
		now:        time.Now,
		conv:       conv,
		mode:       mode,
		subs:       make(map[int]func(Event)),
	}, nil
}

// ToggleContext adds or removes a file from the context selection and
// reports whether it is now selected.
func (r *Relay) ToggleContext(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sel := range r.selected {
		if sel == id {
			r.selected = append(r.selected[:i], r.selected[i+1:]...)
			return false
		}
	}
	r.selected = append(r.selected, id)
	return true
}

// ContextIDs returns the selected context file ids.
func (r *Relay) ContextIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.selected...)
}

func (r *Relay) ClearContext() {
	r.mu.Lock()
	r.selected = nil
	r.mu.Unlock()
}

// SetMode switches between Agent and Ask.
func (r *Relay) SetMode(mode string) error {
	normalized := config.NormalizeMode(mode)
	if normalized == "" {
		return fmt.Errorf("unknown mode %q", mode)
	}
	r.mu.Lock()
	r.mode = normalized
	r.mu.Unlock()
	return nil
}

func (r *Relay) Mode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Messages returns a copy of the conversation.
func (r *Relay) Messages() []state.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conv.Messages()
}

// ContextFor returns the context ids a user message was sent with.
func (r *Relay) ContextFor(messageID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conv.ContextFor(messageID)
}

// Subscribe registers fn for every stream event.
func (r *Relay) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Reset clears the conversation. It fails while a request is running.
func (r *Relay) Reset() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return ErrBusy
	}
	r.conv.Clear()
	r.mu.Unlock()
	r.save()
	return nil
}

// Stop cancels the running request. Partial history is kept.
func (r *Relay) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Submit sends text with the current context selection as a new user turn
// and returns the assistant message once the stream ends.
func (r *Relay) Submit(ctx context.Context, text string) (state.Message, error) {
	return r.submit(ctx, text, r.ContextIDs())
}

// Retry sends the text of an earlier user message again, with the context it
// was originally sent with, as a new turn.
func (r *Relay) Retry(ctx context.Context, messageID string) (state.Message, error) {
	r.mu.Lock()
	msg, ok := r.conv.Message(messageID)
	ids := r.conv.ContextFor(messageID)
	r.mu.Unlock()
	if !ok || msg.Role != "user" {
		return state.Message{}, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	return r.submit(ctx, msg.Content, ids)
}

func (r *Relay) submit(ctx context.Context, text string, ids []string) (state.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(ids) == 0 {
		return state.Message{}, ErrEmptyInput
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return state.Message{}, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	mode := r.mode
	userID := fmt.Sprintf("temp-%d", r.now().UnixMilli())
	r.conv.Append(state.Message{ID: userID, Role: "user", Content: text})
	r.conv.SetContext(userID, ids)
	req := server.ChatRequest{
		Messages: wireMessages(r.conv.Messages()),
		Context:  r.snapshotContext(ids),
		Mode:     mode,
	}
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		r.save()
	}()

	t := &turn{relay: r, userID: userID, contextIDs: ids}
	err := r.stream(ctx, req, t)
	if err == nil {
		err = t.err
	}
	if err != nil {
		t.fail(err)
	}
	return t.result(), err
}

func wireMessages(history []state.Message) []server.ChatMessage {
	out := make([]server.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if m.Role == "assistant" && m.Content == "" {
			continue
		}
		out = append(out, server.ChatMessage{ID: m.ID, Role: m.Role, Content: m.Content})
	}
	return out
}

func (r *Relay) snapshotContext(ids []string) []prompts.ContextFile {
	out := make([]prompts.ContextFile, 0, len(ids))
	for _, id := range ids {
		f, ok := r.store.File(id)
		if !ok {
			r.log.Warn("context file missing", map[string]any{"file_id": id})
			continue
		}
		out = append(out, prompts.ContextFile{ID: f.ID, Name: f.Name, Type: string(f.Kind), Content: f.Content})
	}
	return out
}

func (r *Relay) stream(ctx context.Context, payload server.ChatRequest, t *turn) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return endpointError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 2*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var f struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &f); err != nil {
			r.log.Warn("skipping malformed frame", map[string]any{"error": err.Error()})
			continue
		}
		if done := t.handle(ctx, f.Type, f.Data); done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read chat stream: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !t.finished {
		return errors.New("chat stream ended before finish")
	}
	return nil
}

func endpointError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("chat endpoint %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("chat endpoint %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

func (r *Relay) emit(ev Event) {
	r.mu.Lock()
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (r *Relay) save() {
	if r.history == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.history.Save(r.conv); err != nil {
		r.log.Error("save conversation failed", map[string]any{"key": r.conv.Key(), "error": err.Error()})
	}
}

// apply resolves the target of a tool call and dispatches the edit. The
// returned string is the completion result recorded on the invocation.
func (r *Relay) apply(ctx context.Context, toolName string, args json.RawMessage, contextIDs []string) string {
	var raw map[string]any
	if err := json.Unmarshal(args, &raw); err != nil {
		return "invalid arguments: " + err.Error()
	}
	var (
		ident string
		kind  workspace.Kind
		build func(workspace.File) editor.Command
	)
	switch toolName {
	case tooling.EditDocName:
		a, err := tooling.ParseEditDoc(raw)
		if err != nil {
			return "invalid arguments: " + err.Error()
		}
		ident, kind = a.DocID, workspace.KindDoc
		build = func(f workspace.File) editor.Command {
			cmd := editor.InsertMarker{FileID: f.ID}
			if r.appendText {
				cmd.Text = a.Text
			}
			return cmd
		}
	case tooling.EditSheetName:
		a, err := tooling.ParseEditSheet(raw)
		if err != nil {
			return "invalid arguments: " + err.Error()
		}
		ident, kind = a.SheetID, workspace.KindSheet
		build = func(f workspace.File) editor.Command {
			return editor.SetCell{FileID: f.ID, Cell: a.Cell, Value: a.Value}
		}
	default:
		return fmt.Sprintf("unknown tool %q", toolName)
	}

	st := r.store.State()
	var attached []workspace.File
	for _, id := range contextIDs {
		if f, ok := r.store.File(id); ok {
			attached = append(attached, f)
		}
	}
	target, ok := Resolve(st.Files, attached, ident, kind)
	if !ok {
		r.log.Warn("tool target did not resolve", map[string]any{"tool": toolName, "target": ident})
		return fmt.Sprintf("no matching file for %q", ident)
	}
	if r.editors == nil {
		return "dispatch failed: no editors attached"
	}
	if err := r.editors.Dispatch(ctx, build(target)); errors.Is(err, editor.ErrIgnored) {
		return fmt.Sprintf("ignored by %s (%s): %s", target.Name, target.ID, ignoredReason(err))
	} else if err != nil {
		r.log.Error("dispatch failed", map[string]any{"tool": toolName, "file_id": target.ID, "error": err.Error()})
		return "dispatch failed: " + err.Error()
	}
	r.log.WithFile(target.ID).Info("edit applied", map[string]any{"tool": toolName})
	return fmt.Sprintf("applied to %s (%s)", target.Name, target.ID)
}

// ignoredReason strips the ErrIgnored prefix from a dispatch error.
func ignoredReason(err error) string {
	return strings.TrimPrefix(err.Error(), editor.ErrIgnored.Error()+": ")
}
