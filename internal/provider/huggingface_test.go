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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
)

func TestHuggingFace_Send_PostsTranscript(t *testing.T) {
	var got hfRequest
	var path, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		io.WriteString(w, `[{"generated_text": " Use TABLE queries.\nUser: and then?"}]`)
	}))
	defer server.Close()

	client := NewHuggingFace("hf_test").WithBaseURL(server.URL)
	msg, err := client.Send(context.Background(), Request{
		Prompt:  "How do I list notes?",
		Model:   "meta-llama/Llama-2-7b-chat-hf",
		History: []model.Message{model.NewUserMessage("hi"), model.NewAssistantMessage("hello", "huggingface", "gpt2")},
		Options: Options{Temperature: 0.5, MaxTokens: 1500},
	})
	require.NoError(t, err)

	assert.Equal(t, "/meta-llama/Llama-2-7b-chat-hf", path)
	assert.Equal(t, "Bearer hf_test", auth)
	assert.Equal(t, "User: hi\nAssistant: hello\nUser: How do I list notes?\nAssistant: ", got.Inputs)
	assert.Equal(t, 1500, got.Parameters.MaxLength)
	assert.Equal(t, 0.5, got.Parameters.Temperature)
	assert.False(t, got.Parameters.ReturnFullText)

	assert.Equal(t, "Use TABLE queries.", msg.Content)
	assert.Equal(t, "meta-llama/Llama-2-7b-chat-hf", msg.Model)
	assert.Equal(t, "huggingface", msg.Provider)
	assert.Equal(t, model.RoleAssistant, msg.Role)
}

func TestHuggingFace_Send_ObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"generated_text": "Templater runs scripts."}`)
	}))
	defer server.Close()

	msg, err := NewHuggingFace("hf_test").WithBaseURL(server.URL).Send(context.Background(), Request{Prompt: "q", Model: "gpt2"})
	require.NoError(t, err)
	assert.Equal(t, "Templater runs scripts.", msg.Content)
}

func TestHuggingFace_Send_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   failure.Kind
	}{
		{"bad token", 400, `{"error": "Authorization header is correct, but the token seems invalid"}`, failure.KindAuthFailure},
		{"bad parameter", 422, `{"error": "Input validation error: temperature must be positive"}`, failure.KindConfigError},
		{"unauthorized", 401, `{"error": "Invalid credentials in Authorization header"}`, failure.KindAuthFailure},
		{"rate limited", 429, `{"error": "Rate limit reached. You reached free usage limit"}`, failure.KindQuotaExceeded},
		{"model loading", 503, `{"error": "Model gpt2 is currently loading", "estimated_time": 20.0}`, failure.KindNetworkFailure},
		{"not json", 200, `<html>oops</html>`, failure.KindUpstreamMalformed},
		{"empty array", 200, `[]`, failure.KindUpstreamMalformed},
		{"missing field", 200, `[{"text": "x"}]`, failure.KindUpstreamMalformed},
		{"empty generation", 200, `[{"generated_text": "   "}]`, failure.KindUpstreamMalformed},
		{"error in 200 body", 200, `{"error": "quota exhausted for this month"}`, failure.KindQuotaExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewHuggingFace("hf_test").WithBaseURL(server.URL).Send(context.Background(), Request{Prompt: "q", Model: "gpt2"})
			require.Error(t, err)
			assert.Equal(t, tt.want, failure.KindOf(err), "error: %v", err)
		})
	}
}

func TestHuggingFace_Send_MissingKey(t *testing.T) {
	_, err := NewHuggingFace("").Send(context.Background(), Request{Prompt: "q", Model: "gpt2"})
	assert.True(t, failure.IsAuth(err))
}

func TestBuildTranscript_WithSystem(t *testing.T) {
	got := BuildTranscript(Request{System: "Be brief.", Prompt: "q"})
	assert.Equal(t, "Be brief.\n\n=== CONVERSATION ===\n\nUser: q\nAssistant: ", got)
}

func TestTrimContinuation(t *testing.T) {
	assert.Equal(t, "answer", trimContinuation("answer\nUser: more"))
	assert.Equal(t, "line one\nline two", trimContinuation("line one\nline two\n"))
}
