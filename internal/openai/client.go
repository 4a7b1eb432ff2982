// Package openai talks to OpenAI-compatible chat completion endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"aira/internal/llm"
	"aira/internal/logging"
)

const providerName = "openai"

// Client is a minimal HTTP wrapper around the chat completions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *log.Logger
}

// NewClient wires together the dependencies for API access.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logging.OrDiscard(logger),
	}
}

// Chat executes a single completion request. Non-2xx responses come back as
// *llm.ProviderError.
func (c *Client) Chat(ctx context.Context, reqPayload llm.ChatRequest) (llm.ChatResponse, error) {
	var respPayload llm.ChatResponse

	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return respPayload, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return respPayload, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Printf("sending %d messages to model %s (%d tools)", len(reqPayload.Messages), reqPayload.Model, len(reqPayload.Tools))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return respPayload, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return respPayload, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		logging.ErrorLog("openai API error: %d - %s", resp.StatusCode, string(body))
		return respPayload, llm.FromHTTPResponse(providerName, resp.StatusCode, resp.Header, body)
	}

	if err := json.Unmarshal(body, &respPayload); err != nil {
		logging.ErrorLog("openai response parse error: %v", err)
		return respPayload, fmt.Errorf("parse response: %w", err)
	}
	if len(respPayload.Choices) == 0 {
		return respPayload, fmt.Errorf("no choices returned")
	}
	logging.DevLog("openai: received response with %d choices", len(respPayload.Choices))
	return respPayload, nil
}
