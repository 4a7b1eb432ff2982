// Package state persists relay conversations as JSON files.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"aira/internal/logging"
)

var (
	// ErrUnknownState is returned when operations reference an undefined key.
	ErrUnknownState = errors.New("unknown conversation")

	fileExtension = ".json"
	keySanitizer  = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// Tool invocation states.
const (
	ToolStateCall   = "call"
	ToolStateResult = "result"
)

// Message is one relay turn. Assistant messages carry ordered parts: text
// and tool invocations interleave as the stream delivers them.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Parts     []Part    `json:"parts,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Part is a text span or a tool invocation.
type Part struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Tool *ToolInvocation `json:"tool,omitempty"`
}

// ToolInvocation tracks a model tool call until the relay reports its result.
type ToolInvocation struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
	State      string          `json:"state"`
	Result     string          `json:"result,omitempty"`
}

// Tools returns the message's tool invocations in order.
func (m Message) Tools() []ToolInvocation {
	var out []ToolInvocation
	for _, p := range m.Parts {
		if p.Tool != nil {
			out = append(out, *p.Tool)
		}
	}
	return out
}

func (m Message) clone() Message {
	if len(m.Parts) == 0 {
		return m
	}
	parts := make([]Part, len(m.Parts))
	for i, p := range m.Parts {
		if p.Tool != nil {
			t := *p.Tool
			t.Args = append(json.RawMessage(nil), p.Tool.Args...)
			p.Tool = &t
		}
		parts[i] = p
	}
	m.Parts = parts
	return m
}

// Conversation is a named list of relay messages plus the context file ids
// each user message was sent with.
type Conversation struct {
	key         string
	messages    []Message
	contexts    map[string][]string
	storagePath string
	createdAt   time.Time
	updatedAt   time.Time
}

// Key returns the identifier assigned to the conversation.
func (c *Conversation) Key() string {
	return c.key
}

// StoragePath returns the file path where this conversation is persisted.
func (c *Conversation) StoragePath() string {
	return c.storagePath
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// Message looks up one message by id.
func (c *Conversation) Message(id string) (Message, bool) {
	for _, m := range c.messages {
		if m.ID == id {
			return m.clone(), true
		}
	}
	return Message{}, false
}

// Append adds a message to the history.
func (c *Conversation) Append(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	c.messages = append(c.messages, msg)
	c.touch()
}

// Update applies fn to the message with the given id.
func (c *Conversation) Update(id string, fn func(*Message)) bool {
	for i := range c.messages {
		if c.messages[i].ID == id {
			fn(&c.messages[i])
			c.touch()
			return true
		}
	}
	return false
}

// RenameMessage replaces a message id, moving its recorded context with it.
func (c *Conversation) RenameMessage(oldID, newID string) bool {
	if oldID == newID || newID == "" {
		return false
	}
	renamed := c.Update(oldID, func(m *Message) { m.ID = newID })
	if ids, ok := c.contexts[oldID]; ok {
		delete(c.contexts, oldID)
		c.contexts[newID] = ids
	}
	return renamed
}

// SetContext records the context file ids a message was sent with.
func (c *Conversation) SetContext(messageID string, ids []string) {
	if c.contexts == nil {
		c.contexts = make(map[string][]string)
	}
	c.contexts[messageID] = append([]string(nil), ids...)
	c.touch()
}

// ContextFor returns the context file ids recorded for a message.
func (c *Conversation) ContextFor(messageID string) []string {
	return append([]string(nil), c.contexts[messageID]...)
}

// Clear removes all history.
func (c *Conversation) Clear() {
	c.messages = c.messages[:0]
	c.contexts = make(map[string][]string)
	c.touch()
}

// CreatedAt returns when the conversation was first persisted.
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the conversation last changed.
func (c *Conversation) UpdatedAt() time.Time {
	return c.updatedAt
}

func (c *Conversation) touch() {
	now := time.Now()
	if c.createdAt.IsZero() {
		c.createdAt = now
	}
	c.updatedAt = now
}

// Manager orchestrates multiple named conversations.
type Manager struct {
	mu         sync.RWMutex
	states     map[string]*Conversation
	currentKey string
	root       string
	logger     *log.Logger
}

// NewManager loads every conversation stored under root.
func NewManager(root string, logger *log.Logger) (*Manager, error) {
	if root == "" {
		root = "conversations"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	mgr := &Manager{
		states: make(map[string]*Conversation),
		root:   root,
		logger: logging.OrDiscard(logger),
	}
	if err := mgr.loadExisting(); err != nil {
		return nil, err
	}
	return mgr, nil
}

// Ensure fetches or creates a conversation and makes it current. An empty
// key creates the next chat-N.
func (m *Manager) Ensure(key string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "" {
		key = m.generateUniqueSessionNameLocked()
	}
	if conv, ok := m.states[key]; ok {
		m.currentKey = key
		return conv, nil
	}
	conv := newConversation(key)
	if err := m.persistConversationLocked(conv); err != nil {
		return nil, err
	}
	m.states[key] = conv
	m.currentKey = key
	return conv, nil
}

// Use switches to an existing conversation.
func (m *Manager) Use(key string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.states[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownState, key)
	}
	m.currentKey = key
	return conv, nil
}

// Delete removes a stored conversation from memory and disk.
func (m *Manager) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.states[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownState, key)
	}
	if conv.storagePath != "" {
		if err := os.Remove(conv.storagePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete conversation %s: %w", key, err)
		}
	}
	delete(m.states, key)
	if m.currentKey == key {
		m.currentKey = ""
	}
	return nil
}

// Current exposes the active conversation, creating a default one if needed.
func (m *Manager) Current() *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureCurrentLocked()
}

// CurrentKey reveals which conversation is active.
func (m *Manager) CurrentKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentKey
}

// Summary captures metadata about a stored conversation without exposing message content.
type Summary struct {
	Key          string    `json:"key"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Summaries returns details for each known conversation, most recently updated first.
func (m *Manager) Summaries() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]Summary, 0, len(m.states))
	for key, conv := range m.states {
		summaries = append(summaries, Summary{
			Key:          key,
			CreatedAt:    conv.CreatedAt(),
			UpdatedAt:    conv.UpdatedAt(),
			MessageCount: len(conv.messages),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].Key < summaries[j].Key
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries
}

// Save writes the provided conversation to disk.
func (m *Manager) Save(conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv == nil {
		return errors.New("conversation is nil")
	}
	if _, ok := m.states[conv.key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownState, conv.key)
	}
	return m.persistConversationLocked(conv)
}

func (m *Manager) ensureCurrentLocked() *Conversation {
	if m.currentKey == "" {
		m.currentKey = m.generateUniqueSessionNameLocked()
	}
	if conv, ok := m.states[m.currentKey]; ok {
		return conv
	}
	conv := newConversation(m.currentKey)
	if err := m.persistConversationLocked(conv); err != nil {
		m.logger.Printf("persist conversation failed: %v", err)
	}
	m.states[m.currentKey] = conv
	return conv
}

func (m *Manager) loadExisting() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("read conversation root: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExtension {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			m.logger.Printf("read %s failed: %v", path, err)
			continue
		}
		var persisted persistedConversation
		if err := json.Unmarshal(data, &persisted); err != nil {
			m.logger.Printf("parse %s failed: %v", path, err)
			continue
		}
		key := persisted.Key
		if key == "" {
			key = strings.TrimSuffix(entry.Name(), fileExtension)
		}
		conv := &Conversation{
			key:         key,
			messages:    persisted.Messages,
			contexts:    persisted.Contexts,
			storagePath: path,
			createdAt:   persisted.CreatedAt,
			updatedAt:   persisted.UpdatedAt,
		}
		if conv.contexts == nil {
			conv.contexts = make(map[string][]string)
		}
		if conv.createdAt.IsZero() {
			if info, statErr := os.Stat(path); statErr == nil {
				conv.createdAt = info.ModTime()
			} else {
				conv.createdAt = time.Now()
			}
		}
		if conv.updatedAt.IsZero() {
			conv.updatedAt = conv.createdAt
		}
		m.states[conv.key] = conv
		loaded++
	}
	if loaded > 0 {
		m.logger.Printf("loaded %d stored conversations", loaded)
		var mostRecent *Conversation
		for _, conv := range m.states {
			if mostRecent == nil || conv.updatedAt.After(mostRecent.updatedAt) {
				mostRecent = conv
			}
		}
		m.currentKey = mostRecent.key
	}
	return nil
}

func (m *Manager) persistConversationLocked(conv *Conversation) error {
	if conv.storagePath == "" {
		conv.storagePath = filepath.Join(m.root, sanitizeKey(conv.key)+fileExtension)
	}
	payload := persistedConversation{
		Key:       conv.key,
		Messages:  conv.messages,
		Contexts:  conv.contexts,
		CreatedAt: conv.createdAt,
		UpdatedAt: conv.updatedAt,
	}
	if payload.Messages == nil {
		payload.Messages = []Message{}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	tmp := conv.storagePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp conversation: %w", err)
	}
	if err := os.Rename(tmp, conv.storagePath); err != nil {
		return fmt.Errorf("replace conversation: %w", err)
	}
	return nil
}

func sanitizeKey(key string) string {
	sanitized := keySanitizer.ReplaceAllString(strings.TrimSpace(key), "_")
	sanitized = strings.Trim(sanitized, "_-")
	if sanitized == "" {
		sanitized = "conversation"
	}
	return sanitized
}

// generateUniqueSessionNameLocked returns the next chat-N. Caller holds m.mu.
func (m *Manager) generateUniqueSessionNameLocked() string {
	maxNum := 0
	for key := range m.states {
		var num int
		if _, err := fmt.Sscanf(key, "chat-%d", &num); err == nil && num > maxNum {
			maxNum = num
		}
	}
	return fmt.Sprintf("chat-%d", maxNum+1)
}

func newConversation(key string) *Conversation {
	now := time.Now()
	return &Conversation{key: key, contexts: make(map[string][]string), createdAt: now, updatedAt: now}
}

// persistedConversation mirrors the JSON schema stored on disk.
type persistedConversation struct {
	Key       string              `json:"key"`
	Messages  []Message           `json:"messages"`
	Contexts  map[string][]string `json:"contexts,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}
