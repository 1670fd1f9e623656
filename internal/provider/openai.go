// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
)

// DefaultOpenAIURL is the base URL for the OpenAI API.
const DefaultOpenAIURL = "https://api.openai.com/v1"

// =============================================================================
// WIRE TYPES
// =============================================================================

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// OpenAI is the commercial chat-completions adapter.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenAI creates an adapter authenticated with apiKey. An empty key still
// yields a client; every Send then fails with AuthFailure.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultOpenAIURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *OpenAI) WithBaseURL(url string) *OpenAI {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithTimeout sets the request timeout.
func (c *OpenAI) WithTimeout(timeout time.Duration) *OpenAI {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithLogger sets the logger used for request tracing.
func (c *OpenAI) WithLogger(logger *zap.Logger) *OpenAI {
	if logger != nil {
		c.logger = logger.Named("openai")
	}
	return c
}

// Kind implements Provider.
func (c *OpenAI) Kind() Kind {
	return KindCommercial
}

// IsConfigured returns true if the client has an API key configured.
func (c *OpenAI) IsConfigured() bool {
	return c.apiKey != ""
}

// Send implements Provider.
func (c *OpenAI) Send(ctx context.Context, req Request) (model.Message, error) {
	const op = "openai.send"

	if !c.IsConfigured() {
		return model.Message{}, failure.New(failure.KindAuthFailure, op, "OpenAI API key not configured")
	}

	body := chatRequest{
		Model:       req.Model,
		Messages:    buildChatMessages(req),
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	}

	resp, err := c.doRequest(ctx, body)
	if err != nil {
		return model.Message{}, err
	}

	if len(resp.Choices) == 0 {
		return model.Message{}, failure.New(failure.KindUpstreamMalformed, op, "response contained no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return model.Message{}, failure.New(failure.KindUpstreamMalformed, op, "response contained an empty message")
	}

	c.logger.Debug("completion received",
		zap.String("model", req.Model),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return model.NewAssistantMessage(content, KindCommercial.String(), req.Model), nil
}

// buildChatMessages lays out system text, prior turns and the new prompt in
// chat-completions order.
func buildChatMessages(req Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		msgs = append(msgs, chatMessage{Role: m.Role.String(), Content: m.Content})
	}
	return append(msgs, chatMessage{Role: "user", Content: req.Prompt})
}

// doRequest performs a single HTTP request to the chat completions endpoint.
func (c *OpenAI) doRequest(ctx context.Context, reqBody chatRequest) (*chatResponse, error) {
	const op = "openai.send"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfigError, op, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, failure.Wrap(failure.KindConfigError, op, "failed to create request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	body, err := readResponse(op, resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, failure.Wrap(failure.KindUpstreamMalformed, op, "failed to parse response", err)
	}
	return &chatResp, nil
}

// handleErrorResponse converts an OpenAI error body to a failure. The
// insufficient_quota code arrives with a 429 but is surfaced as quota
// regardless of status.
func (c *OpenAI) handleErrorResponse(status int, body []byte) error {
	const op = "openai.send"

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		switch apiErr.Error.Code {
		case "insufficient_quota":
			return failure.Newf(failure.KindQuotaExceeded, op, "HTTP %d: %s", status, apiErr.Error.Message)
		case "invalid_api_key":
			return failure.Newf(failure.KindAuthFailure, op, "HTTP %d: %s", status, apiErr.Error.Message)
		}
		return classifyStatus(op, status, apiErr.Error.Message)
	}
	return classifyStatus(op, status, snippet(body))
}
