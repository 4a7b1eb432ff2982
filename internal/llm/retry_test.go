package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type flakyClient struct {
	errs  []error
	calls int
}

func (f *flakyClient) Chat(context.Context, ChatRequest) (ChatResponse, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return ChatResponse{}, f.errs[f.calls-1]
	}
	return ChatResponse{Choices: []ChatChoice{{Message: Message{Role: "assistant", Content: "ok"}}}}, nil
}

func recordSleeps(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestChatWithRetryBacksOff(t *testing.T) {
	transient := FromHTTPResponse("openai", http.StatusServiceUnavailable, http.Header{}, nil)
	client := &flakyClient{errs: []error{transient, transient, transient}}
	var delays []time.Duration
	var events []RetryEvent
	policy := RetryPolicy{OnRetry: func(e RetryEvent) { events = append(events, e) }, sleep: recordSleeps(&delays)}

	resp, err := ChatWithRetry(context.Background(), client, ChatRequest{}, policy)
	if err != nil {
		t.Fatalf("ChatWithRetry: %v", err)
	}
	if resp.Choices[0].Message.Content != "ok" {
		t.Fatalf("unexpected response %+v", resp)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays = %v, want %v", delays, want)
		}
	}
	if len(events) != 3 || events[0].NextAttempt != 2 || events[0].MaxAttempts != 5 || events[2].DelayMs != 4000 {
		t.Fatalf("events = %+v", events)
	}
}

func TestChatWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("connection reset")
	client := &flakyClient{errs: []error{transient, transient, transient, transient, transient, transient}}
	var delays []time.Duration
	_, err := ChatWithRetry(context.Background(), client, ChatRequest{}, RetryPolicy{sleep: recordSleeps(&delays)})
	if !errors.Is(err, transient) {
		t.Fatalf("err = %v", err)
	}
	if client.calls != 5 {
		t.Fatalf("calls = %d, want 5", client.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays = %v", delays)
		}
	}
}

func TestChatWithRetryCapsAndHonoursRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "30")
	limited := FromHTTPResponse("openai", http.StatusTooManyRequests, h, []byte(`{"error":{"message":"slow down"}}`))
	client := &flakyClient{errs: []error{limited}}
	var delays []time.Duration
	if _, err := ChatWithRetry(context.Background(), client, ChatRequest{}, RetryPolicy{sleep: recordSleeps(&delays)}); err != nil {
		t.Fatalf("ChatWithRetry: %v", err)
	}
	if len(delays) != 1 || delays[0] != 30*time.Second {
		t.Fatalf("delays = %v, want [30s]", delays)
	}
}

func TestChatWithRetryStopsOnNonRetryable(t *testing.T) {
	auth := FromHTTPResponse("openai", http.StatusUnauthorized, http.Header{}, []byte(`{"error":{"message":"bad key"}}`))
	client := &flakyClient{errs: []error{auth}}
	_, err := ChatWithRetry(context.Background(), client, ChatRequest{}, RetryPolicy{sleep: recordSleeps(new([]time.Duration))})
	pe, ok := IsProviderError(err)
	if !ok || pe.Type != ErrorTypeAuth || pe.Message != "bad key" {
		t.Fatalf("err = %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("calls = %d, want 1", client.calls)
	}
}

func TestChatWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &flakyClient{errs: []error{errors.New("boom")}}
	policy := RetryPolicy{sleep: func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}}
	if _, err := ChatWithRetry(ctx, client, ChatRequest{}, policy); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFromHTTPResponseClassification(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{http.StatusTooManyRequests, ErrorTypeRateLimit, true},
		{http.StatusUnauthorized, ErrorTypeAuth, false},
		{http.StatusPaymentRequired, ErrorTypeInsufficientCredit, false},
		{http.StatusForbidden, ErrorTypeModeration, false},
		{http.StatusBadGateway, ErrorTypeProviderDown, true},
		{http.StatusBadRequest, ErrorTypeBadRequest, false},
	}
	for _, tt := range tests {
		pe := FromHTTPResponse("openai", tt.status, http.Header{}, []byte("plain failure"))
		if pe.Type != tt.wantType || pe.Retryable != tt.retryable {
			t.Errorf("status %d: type=%s retryable=%v", tt.status, pe.Type, pe.Retryable)
		}
		if pe.Message != "plain failure" {
			t.Errorf("status %d: message = %q", tt.status, pe.Message)
		}
	}
}
