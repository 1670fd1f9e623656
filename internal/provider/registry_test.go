// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
)

// stubProvider records the last request and answers with a canned reply.
type stubProvider struct {
	kind  Kind
	last  Request
	calls int
	err   error
}

func (s *stubProvider) Kind() Kind { return s.kind }

func (s *stubProvider) Send(_ context.Context, req Request) (model.Message, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return model.Message{}, s.err
	}
	// Deliberately wrong attribution; the registry must normalize it.
	return model.Message{Role: "weird", Content: "reply", Model: "other"}, nil
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"openai", KindCommercial},
		{"Commercial", KindCommercial},
		{" huggingface ", KindCommunity},
		{"hf", KindCommunity},
		{"community", KindCommunity},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseKind("cohere")
	assert.True(t, failure.IsConfig(err))
}

func TestKind_Names(t *testing.T) {
	assert.Equal(t, "commercial", KindCommercial.Class())
	assert.Equal(t, "community", KindCommunity.Class())
	assert.Equal(t, "unknown", Kind("x").Class())
	assert.Equal(t, "Hugging Face", KindCommunity.DisplayName())
	assert.Equal(t, []Kind{KindCommercial, KindCommunity}, Kinds())
	assert.Equal(t, "openai/gpt-4", Config{Kind: KindCommercial, Model: "gpt-4"}.String())
}

func TestCatalog_Defaults(t *testing.T) {
	c := DefaultCatalog()

	def, ok := c.Default(KindCommercial)
	require.True(t, ok)
	assert.Equal(t, "gpt-3.5-turbo", def)

	def, ok = c.Default(KindCommunity)
	require.True(t, ok)
	assert.Equal(t, "microsoft/DialoGPT-medium", def)

	assert.Len(t, c.Models(KindCommercial), 3)
	assert.Equal(t, []Kind{KindCommunity, KindCommercial}, c.Kinds())

	_, ok = c.Default("local")
	assert.False(t, ok)
}

func TestCatalog_ModelsAreProviderScoped(t *testing.T) {
	c := DefaultCatalog()

	assert.True(t, c.Valid(KindCommercial, "gpt-4"))
	assert.False(t, c.Valid(KindCommunity, "gpt-4"))
	assert.True(t, c.Valid(KindCommunity, "gpt2"))
	assert.False(t, c.Valid(KindCommercial, "gpt2"))

	assert.NoError(t, c.Validate(KindCommunity, "meta-llama/Llama-2-7b-chat-hf"))
	assert.True(t, failure.IsConfig(c.Validate(KindCommunity, "gpt-4")))
	assert.True(t, failure.IsConfig(c.Validate(KindCommercial, "")))
}

func TestCatalog_RegisterReplacesDefault(t *testing.T) {
	c := DefaultCatalog()
	c.Register(ModelInfo{ID: "gpt-test", Kind: KindCommercial, Tier: "Fast", Default: true})

	def, _ := c.Default(KindCommercial)
	assert.Equal(t, "gpt-test", def)
	assert.Len(t, c.Models(KindCommercial), 4)

	c.Register(ModelInfo{ID: "gpt-test", Kind: KindCommercial, Name: "renamed"})
	info, ok := c.Lookup(KindCommercial, "gpt-test")
	require.True(t, ok)
	assert.Equal(t, "renamed", info.Name)
	assert.Len(t, c.Models(KindCommercial), 4)
	assert.Equal(t, "z", info.TierIcon())
}

func TestRegistry_Send_ValidatesBeforeDispatch(t *testing.T) {
	stub := &stubProvider{kind: KindCommercial}
	reg := NewRegistry(nil).Register(stub)

	tests := []struct {
		name string
		kind Kind
		req  Request
		want failure.Kind
	}{
		{"empty prompt", KindCommercial, Request{Prompt: "  ", Model: "gpt-4"}, failure.KindInvalidInput},
		{"unregistered provider", KindCommunity, Request{Prompt: "q", Model: "gpt2"}, failure.KindConfigError},
		{"cross provider model", KindCommercial, Request{Prompt: "q", Model: "gpt2"}, failure.KindConfigError},
		{"no model", KindCommercial, Request{Prompt: "q"}, failure.KindConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Send(context.Background(), tt.kind, tt.req)
			assert.Equal(t, tt.want, failure.KindOf(err))
		})
	}
	assert.Zero(t, stub.calls, "invalid requests must not reach the backend")
}

func TestRegistry_Send_TruncatesHistoryAndNormalizes(t *testing.T) {
	stub := &stubProvider{kind: KindCommercial}
	reg := NewRegistry(DefaultCatalog()).Register(stub).WithHistoryWindow(3)
	assert.True(t, reg.Has(KindCommercial))
	assert.False(t, reg.Has(KindCommunity))
	assert.Equal(t, 3, reg.HistoryWindow())

	history := make([]model.Message, 5)
	for i := range history {
		history[i] = model.NewUserMessage(fmt.Sprintf("m%d", i))
	}

	msg, err := reg.Send(context.Background(), KindCommercial, Request{Prompt: "q", Model: "gpt-4", History: history})
	require.NoError(t, err)

	require.Len(t, stub.last.History, 3)
	assert.Equal(t, "m2", stub.last.History[0].Content)
	assert.Equal(t, "m4", stub.last.History[2].Content)
	assert.Len(t, history, 5, "caller's history must be untouched")

	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, "gpt-4", msg.Model)
	assert.Equal(t, "openai", msg.Provider)
}

func TestRegistry_Send_PropagatesAndLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	stub := &stubProvider{kind: KindCommunity, err: failure.New(failure.KindQuotaExceeded, "huggingface.send", "limit")}
	reg := NewRegistry(nil).Register(stub).WithLogger(zap.New(core))

	_, err := reg.Send(context.Background(), KindCommunity, Request{Prompt: "q", Model: "gpt2"})
	assert.ErrorIs(t, err, failure.ErrQuotaExceeded)
	assert.Equal(t, 1, stub.calls, "the registry must not retry")

	entries := logs.FilterMessage("send failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "QuotaExceeded", entries[0].ContextMap()["kind"])
}
