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

// DefaultHuggingFaceURL is the base URL of the hosted inference API. The
// model id is appended as a path.
const DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models"

// =============================================================================
// WIRE TYPES
// =============================================================================

type hfParameters struct {
	MaxLength      int     `json:"max_length,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// hfResult covers both the success object and the error object the inference
// API returns; successes usually arrive wrapped in a one-element array.
type hfResult struct {
	GeneratedText *string `json:"generated_text"`
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// =============================================================================
// CLIENT
// =============================================================================

// HuggingFace is the community inference adapter. It flattens the
// conversation into a single transcript prompt.
type HuggingFace struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHuggingFace creates an adapter authenticated with apiKey.
func NewHuggingFace(apiKey string) *HuggingFace {
	return &HuggingFace{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultHuggingFaceURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *HuggingFace) WithBaseURL(url string) *HuggingFace {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithTimeout sets the request timeout.
func (c *HuggingFace) WithTimeout(timeout time.Duration) *HuggingFace {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithLogger sets the logger used for request tracing.
func (c *HuggingFace) WithLogger(logger *zap.Logger) *HuggingFace {
	if logger != nil {
		c.logger = logger.Named("huggingface")
	}
	return c
}

// Kind implements Provider.
func (c *HuggingFace) Kind() Kind {
	return KindCommunity
}

// IsConfigured returns true if the client has an API key configured.
func (c *HuggingFace) IsConfigured() bool {
	return c.apiKey != ""
}

// Send implements Provider.
func (c *HuggingFace) Send(ctx context.Context, req Request) (model.Message, error) {
	const op = "huggingface.send"

	if !c.IsConfigured() {
		return model.Message{}, failure.New(failure.KindAuthFailure, op, "Hugging Face API key not configured")
	}

	payload, err := json.Marshal(hfRequest{
		Inputs: BuildTranscript(req),
		Parameters: hfParameters{
			MaxLength:   req.Options.MaxTokens,
			Temperature: req.Options.Temperature,
		},
	})
	if err != nil {
		return model.Message{}, failure.Wrap(failure.KindConfigError, op, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+req.Model, bytes.NewReader(payload))
	if err != nil {
		return model.Message{}, failure.Wrap(failure.KindConfigError, op, "failed to create request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.Message{}, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api response",
		zap.String("model", req.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	body, err := readResponse(op, resp)
	if err != nil {
		return model.Message{}, err
	}

	result, parseErr := parseGeneration(body)

	if resp.StatusCode != http.StatusOK {
		detail := snippet(body)
		if parseErr == nil && result.Error != "" {
			detail = result.Error
		}
		return model.Message{}, classifyStatus(op, resp.StatusCode, detail)
	}
	if parseErr != nil {
		return model.Message{}, failure.Wrap(failure.KindUpstreamMalformed, op, "failed to parse response", parseErr)
	}
	if result.Error != "" {
		return model.Message{}, classifyStatus(op, http.StatusBadRequest, result.Error)
	}
	if result.GeneratedText == nil {
		return model.Message{}, failure.New(failure.KindUpstreamMalformed, op, "response has no generated_text")
	}

	content := trimContinuation(*result.GeneratedText)
	if content == "" {
		return model.Message{}, failure.New(failure.KindUpstreamMalformed, op, "model generated an empty reply")
	}

	return model.NewAssistantMessage(content, KindCommunity.String(), req.Model), nil
}

// parseGeneration accepts `[{"generated_text": ...}]` or a bare object.
func parseGeneration(body []byte) (hfResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []hfResult
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return hfResult{}, err
		}
		if len(results) == 0 {
			return hfResult{}, nil
		}
		return results[0], nil
	}

	var result hfResult
	err := json.Unmarshal(trimmed, &result)
	return result, err
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

const (
	transcriptUser      = "User: "
	transcriptAssistant = "Assistant: "
)

// BuildTranscript flattens a request into the plain-text prompt the community
// models expect: system text, a conversation section with one "User:" or
// "Assistant:" line per turn, and a trailing "Assistant: " cue.
func BuildTranscript(req Request) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n=== CONVERSATION ===\n\n")
	}
	for _, m := range req.History {
		if m.Role == model.RoleUser {
			b.WriteString(transcriptUser)
		} else {
			b.WriteString(transcriptAssistant)
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	b.WriteString(transcriptUser)
	b.WriteString(req.Prompt)
	b.WriteByte('\n')
	b.WriteString(transcriptAssistant)
	return b.String()
}

// trimContinuation drops any invented follow-up turn the model appended
// after its own answer.
func trimContinuation(text string) string {
	if i := strings.Index(text, "\n"+transcriptUser); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
