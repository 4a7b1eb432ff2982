package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorType classifies provider errors for UI handling
type ErrorType string

const (
	ErrorTypeRateLimit          ErrorType = "rate_limit"          // 429
	ErrorTypeInsufficientCredit ErrorType = "insufficient_credit" // 402
	ErrorTypeProviderDown       ErrorType = "provider_down"       // 5xx
	ErrorTypeAuth               ErrorType = "auth"                // 401
	ErrorTypeModeration         ErrorType = "moderation"          // 403
	ErrorTypeBadRequest         ErrorType = "bad_request"         // other 4xx
	ErrorTypeUnknown            ErrorType = "unknown"
)

// ProviderError is a structured error returned by LLM clients
type ProviderError struct {
	Type       ErrorType
	Provider   string
	Code       string
	Message    string
	RetryAfter *time.Duration
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsProviderError checks if err is a ProviderError and returns it
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// NewProviderError creates a new ProviderError with the given parameters
func NewProviderError(provider string, errType ErrorType, code, message string) *ProviderError {
	return &ProviderError{
		Type:     errType,
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// FromHTTPResponse classifies a non-2xx completion response.
func FromHTTPResponse(provider string, status int, header http.Header, body []byte) *ProviderError {
	pe := NewProviderError(provider, ErrorTypeUnknown, strconv.Itoa(status), errorMessage(status, body))
	switch {
	case status == http.StatusTooManyRequests:
		pe.Type = ErrorTypeRateLimit
		pe.Retryable = true
	case status == http.StatusUnauthorized:
		pe.Type = ErrorTypeAuth
	case status == http.StatusPaymentRequired:
		pe.Type = ErrorTypeInsufficientCredit
	case status == http.StatusForbidden:
		pe.Type = ErrorTypeModeration
	case status == http.StatusRequestTimeout:
		pe.Type = ErrorTypeProviderDown
		pe.Retryable = true
	case status >= 500:
		pe.Type = ErrorTypeProviderDown
		pe.Retryable = true
	case status >= 400:
		pe.Type = ErrorTypeBadRequest
	}
	if d, ok := parseRetryAfter(header.Get("Retry-After")); ok {
		pe.RetryAfter = &d
	}
	return pe
}

// errorMessage prefers the OpenAI {"error": {"message"}} body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		return msg
	}
	return http.StatusText(status)
}

func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
	}
	return 0, false
}
