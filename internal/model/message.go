// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/obsidian-assistant/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the two conversational roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn in a project's history. It is passed and stored by
// value; once appended to a project it is never modified.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Provider and Model identify what produced an assistant reply.
	// Both are empty for user messages.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{
		ID:        generateID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant reply attributed to provider/model.
func NewAssistantMessage(content, provider, model string) Message {
	return Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Provider:  provider,
		Model:     model,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Preview returns a truncated single-line preview of the content, measured in
// terminal cells.
func (m Message) Preview(maxWidth int) string {
	return util.TruncateWidth(util.SingleLine(m.Content), maxWidth)
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// EstimateTokens gives a rough estimate of token count.
// Uses the approximation of ~4 characters per token.
func (m Message) EstimateTokens() int {
	return (len(m.Content) + 3) / 4
}

// Attribution returns "provider/model" for assistant messages and "" otherwise.
func (m Message) Attribution() string {
	if m.Role != RoleAssistant || m.Model == "" {
		return ""
	}
	if m.Provider == "" {
		return m.Model
	}
	return m.Provider + "/" + m.Model
}

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}
