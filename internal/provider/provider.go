// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider adapts the commercial (OpenAI) and community (Hugging Face)
// text-generation APIs to one Send contract that returns a normalized
// assistant message.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
)

// Configuration constants shared by the HTTP adapters.
const (
	// DefaultTimeout bounds a single upstream round-trip.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024

	// userAgent identifies this client to the upstream APIs.
	userAgent = "obsidian-assistant/1.0"
)

// =============================================================================
// PROVIDER KIND
// =============================================================================

// Kind names a provider backend. The string value is the configuration name.
type Kind string

const (
	// KindCommercial is the paid chat-completions backend (OpenAI).
	KindCommercial Kind = "openai"

	// KindCommunity is the community-hosted inference backend (Hugging Face).
	KindCommunity Kind = "huggingface"
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	return string(k)
}

// Class returns "commercial" or "community".
func (k Kind) Class() string {
	switch k {
	case KindCommercial:
		return "commercial"
	case KindCommunity:
		return "community"
	default:
		return "unknown"
	}
}

// DisplayName returns a human-readable backend name.
func (k Kind) DisplayName() string {
	switch k {
	case KindCommercial:
		return "OpenAI"
	case KindCommunity:
		return "Hugging Face"
	default:
		return string(k)
	}
}

// ParseKind accepts either the configuration name or the class name of a
// backend, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "commercial":
		return KindCommercial, nil
	case "huggingface", "hugging-face", "hf", "community":
		return KindCommunity, nil
	default:
		return "", failure.Newf(failure.KindConfigError, "provider.parse",
			"unknown provider %q (expected openai or huggingface)", s)
	}
}

// Kinds lists the built-in backends in display order.
func Kinds() []Kind {
	return []Kind{KindCommercial, KindCommunity}
}

// =============================================================================
// REQUEST / CAPABILITY
// =============================================================================

// Options are generation parameters forwarded upstream. Zero values are
// omitted from the request so the provider's own defaults apply.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Request is one send to a provider.
type Request struct {
	// Prompt is the (possibly augmented) user text for this turn.
	Prompt string

	// History is prior conversation context, oldest first.
	History []model.Message

	// Model is the provider-scoped model identifier.
	Model string

	// System is optional instruction text placed before the conversation.
	System string

	Options Options
}

// Provider is a text-generation backend.
type Provider interface {
	Kind() Kind

	// Send performs one request and returns an assistant message whose Model
	// is the requested model. Implementations never retry and keep no state
	// between calls.
	Send(ctx context.Context, req Request) (model.Message, error)
}

// Config is the session-owned provider selection. The credential itself is
// bound into the adapter at construction and never travels with Config.
type Config struct {
	Kind  Kind   `json:"kind"`
	Model string `json:"model"`
}

// String renders "kind/model".
func (c Config) String() string {
	return fmt.Sprintf("%s/%s", c.Kind, c.Model)
}
