// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
)

const okCompletion = `{
	"id": "chatcmpl-1",
	"model": "gpt-4-0613",
	"choices": [{
		"message": {"role": "assistant", "content": "  DataView queries your vault.  "},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestOpenAI_Send_BuildsChatRequest(t *testing.T) {
	var got chatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okCompletion)
	}))
	defer server.Close()

	client := NewOpenAI("sk-test").WithBaseURL(server.URL + "/")
	msg, err := client.Send(context.Background(), Request{
		Prompt: "What is DataView?",
		Model:  "gpt-4",
		System: "You are an Obsidian expert.",
		History: []model.Message{
			model.NewUserMessage("hi"),
			model.NewAssistantMessage("hello", "openai", "gpt-4"),
		},
		Options: Options{Temperature: 0.7, MaxTokens: 1000},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, chatMessage{Role: "system", Content: "You are an Obsidian expert."}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "hi"}, got.Messages[1])
	assert.Equal(t, chatMessage{Role: "assistant", Content: "hello"}, got.Messages[2])
	assert.Equal(t, chatMessage{Role: "user", Content: "What is DataView?"}, got.Messages[3])

	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, "DataView queries your vault.", msg.Content)
	assert.Equal(t, "gpt-4", msg.Model, "model must be the requested id, not the upstream snapshot name")
	assert.Equal(t, "openai", msg.Provider)
}

func TestOpenAI_Send_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   failure.Kind
	}{
		{"unauthorized", 401, `{"error":{"message":"Incorrect API key provided","code":"invalid_api_key"}}`, failure.KindAuthFailure},
		{"forbidden", 403, `forbidden`, failure.KindAuthFailure},
		{"rate limited", 429, `{"error":{"message":"Rate limit reached","code":"rate_limit_exceeded"}}`, failure.KindQuotaExceeded},
		{"insufficient quota", 429, `{"error":{"message":"You exceeded your current quota","code":"insufficient_quota"}}`, failure.KindQuotaExceeded},
		{"billing wording", 400, `{"error":{"message":"Billing hard limit has been reached"}}`, failure.KindQuotaExceeded},
		{"unknown model", 404, `{"error":{"message":"The model does not exist","code":"model_not_found"}}`, failure.KindConfigError},
		{"server error", 502, `bad gateway`, failure.KindNetworkFailure},
		{"malformed json", 200, `{"choices": [`, failure.KindUpstreamMalformed},
		{"no choices", 200, `{"choices": []}`, failure.KindUpstreamMalformed},
		{"empty content", 200, `{"choices": [{"message": {"role": "assistant", "content": " "}}]}`, failure.KindUpstreamMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewOpenAI("sk-test").WithBaseURL(server.URL).Send(context.Background(), Request{Prompt: "q", Model: "gpt-4"})
			require.Error(t, err)
			assert.Equal(t, tt.want, failure.KindOf(err), "error: %v", err)
		})
	}
}

func TestOpenAI_Send_MissingKey(t *testing.T) {
	_, err := NewOpenAI("  ").Send(context.Background(), Request{Prompt: "q", Model: "gpt-4"})
	assert.True(t, failure.IsAuth(err))
}

func TestOpenAI_Send_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewOpenAI("sk-test").WithBaseURL(server.URL).WithTimeout(50 * time.Millisecond)
	_, err := client.Send(context.Background(), Request{Prompt: "q", Model: "gpt-4"})
	require.Error(t, err)
	assert.Equal(t, failure.KindNetworkFailure, failure.KindOf(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestOpenAI_Send_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, okCompletion)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOpenAI("sk-test").WithBaseURL(server.URL).Send(ctx, Request{Prompt: "q", Model: "gpt-4"})
	require.Error(t, err)
	assert.Equal(t, failure.KindNetworkFailure, failure.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAI_Kind(t *testing.T) {
	c := NewOpenAI("k")
	assert.Equal(t, KindCommercial, c.Kind())
	assert.True(t, c.IsConfigured())
}
