package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aira/internal/llm"
	"aira/internal/tooling"
)

func TestChatSendsRequestAndParsesToolCalls(t *testing.T) {
	var got llm.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"edit_doc","arguments":"{\"docId\":\"1\",\"text\":\"hi\"}"}}]}}],"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", "sk-test", 5*time.Second, nil)
	resp, err := c.Chat(context.Background(), llm.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []llm.Message{{Role: "user", Content: "edit"}},
		Tools:    tooling.EditTools(),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Model != "gpt-4o-mini" || len(got.Tools) != 2 {
		t.Fatalf("request = %+v", got)
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) != 1 || calls[0].Function.Name != "edit_doc" {
		t.Fatalf("tool calls = %+v", calls)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 12 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestChatMapsStatusToProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second, nil).Chat(context.Background(), llm.ChatRequest{})
	pe, ok := llm.IsProviderError(err)
	if !ok {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pe.Type != llm.ErrorTypeRateLimit || !pe.Retryable || pe.Message != "Rate limit reached" {
		t.Fatalf("provider error = %+v", pe)
	}
	if pe.RetryAfter == nil || *pe.RetryAfter != 3*time.Second {
		t.Fatalf("RetryAfter = %v", pe.RetryAfter)
	}
}

func TestChatRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()
	if _, err := NewClient(srv.URL, "k", time.Second, nil).Chat(context.Background(), llm.ChatRequest{}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
