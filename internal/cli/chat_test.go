// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/jeranaias/obsidian-assistant/internal/config"
	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
)

type ChatSuite struct {
	suite.Suite

	h    *harness
	out  bytes.Buffer
	chat *chatSession
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, new(ChatSuite))
}

func (s *ChatSuite) SetupTest() {
	s.h = newHarness(s.T())
	cfg, err := config.LoadFromPath(s.h.path)
	s.Require().NoError(err)

	parts, err := buildComponents(cfg, zaptest.NewLogger(s.T()))
	s.Require().NoError(err)

	s.out.Reset()
	s.chat = newChatSession(parts.newController(), parts.kb, &s.out)
	s.chat.hasKey = func(k provider.Kind) bool { return cfg.APIKey(k) != "" }
}

// send runs one line and returns what it printed.
func (s *ChatSuite) send(line string) (string, error) {
	s.out.Reset()
	quit, err := s.chat.handleLine(context.Background(), line)
	s.False(quit, "line %q should not quit", line)
	return s.out.String(), err
}

func (s *ChatSuite) mustSend(line string) string {
	out, err := s.send(line)
	s.Require().NoError(err, line)
	return out
}

func (s *ChatSuite) TestMessageNeedsProject() {
	_, err := s.send("hello")
	s.Equal(failure.KindNoActiveProject, failure.KindOf(err))
	s.Zero(s.h.upstream.calls.Load())
}

func (s *ChatSuite) TestConversationFlow() {
	out := s.mustSend("/project new Plugins 101")
	s.Contains(out, `Created and switched to "Plugins 101"`)
	s.Contains(s.chat.prompt(), "Plugins 101>")

	out = s.mustSend("What is DataView?")
	s.Contains(out, "DataView is a query plugin.")
	s.Contains(out, "openai/gpt-3.5-turbo")

	out = s.mustSend("/deep on")
	s.Contains(out, "Deep research mode on")
	s.Contains(s.chat.prompt(), "[deep]")

	out = s.mustSend("Compare query plugins")
	s.Contains(out, "openai/gpt-4")
	s.Equal("gpt-4", s.h.upstream.lastModel())

	s.mustSend("/deep")
	s.False(s.chat.ctrl.ResearchMode(), "bare /deep toggles")

	s.mustSend("/project new Templates")
	s.Contains(s.mustSend("/history"), "No messages yet.")

	out = s.mustSend("/project switch plugins 101")
	s.Contains(out, "(4 messages)")

	out = s.mustSend("/history")
	s.Contains(out, "What is DataView?")
	s.Contains(out, "Compare query plugins")
}

func (s *ChatSuite) TestProjectManagement() {
	s.mustSend("/project new Alpha")
	s.mustSend("/project new Beta")
	s.mustSend("question")

	out := s.mustSend("/project list")
	s.Contains(out, "* ")
	s.Contains(out, "Alpha")
	s.Contains(out, "Beta")

	s.mustSend("/project rename Gamma")
	id, ok := s.chat.ctrl.Store().Active()
	s.Require().True(ok)
	sum, err := s.chat.ctrl.Store().Get(id)
	s.Require().NoError(err)
	s.Equal("Gamma", sum.Name)

	s.mustSend("/project clear")
	sum, _ = s.chat.ctrl.Store().Get(id)
	s.Zero(sum.MessageCount)

	out = s.mustSend("/project delete Gamma")
	s.Contains(out, `Deleted "Gamma"`)
	s.Contains(out, "Active project: Alpha")

	_, err = s.send("/project switch Gamma")
	s.True(failure.IsNotFound(err))

	_, err = s.send("/project new Alpha")
	s.Equal(failure.KindInvalidInput, failure.KindOf(err))

	_, err = s.send("/project frobnicate")
	s.Equal(failure.KindInvalidInput, failure.KindOf(err))
}

func (s *ChatSuite) TestProviderAndModel() {
	s.mustSend("/project new p")

	out := s.mustSend("/provider huggingface")
	s.Contains(out, "Hugging Face")
	s.Contains(out, "No Hugging Face API key is configured")
	s.Equal(provider.Config{Kind: provider.KindCommunity, Model: "microsoft/DialoGPT-medium"}, s.chat.ctrl.Provider())

	_, err := s.send("/model gpt-4")
	s.True(failure.IsConfig(err))

	s.mustSend("/model gpt2")
	s.Equal("gpt2", s.chat.ctrl.Provider().Model)

	out = s.mustSend("/models")
	s.Contains(out, "* z gpt2")
	s.NotContains(out, "gpt-3.5-turbo")

	_, err = s.send("/provider local")
	s.True(failure.IsConfig(err))

	s.NotContains(s.mustSend("/provider openai"), "API key")
	s.Require().NoError(s.chat.ctrl.Configure(provider.Config{Kind: provider.KindCommunity, Model: "gpt2"}))

	s.Contains(s.mustSend("/model"), "gpt2")
	s.Contains(s.mustSend("/provider"), "community")
}

func (s *ChatSuite) TestExportJSON() {
	s.mustSend("/project new Exported")
	s.mustSend("What is DataView?")

	out := s.mustSend("/export json")
	var doc struct {
		Name     string          `json:"name"`
		Messages []model.Message `json:"messages"`
	}
	s.Require().NoError(json.Unmarshal([]byte(out), &doc))
	s.Equal("Exported", doc.Name)
	s.Require().Len(doc.Messages, 2)
	s.Equal(model.RoleUser, doc.Messages[0].Role)

	s.Contains(s.mustSend("/export"), "# Exported")

	_, err := s.send("/export pdf")
	s.Equal(failure.KindInvalidInput, failure.KindOf(err))
}

func (s *ChatSuite) TestKnowledgeAndStatus() {
	out := s.mustSend("/kb tags")
	s.Contains(out, "[General Tip]")

	s.Contains(s.mustSend("/kb"), "dataview, templater, tips, problems")

	out = s.mustSend("/status")
	s.Contains(out, "gpt-3.5-turbo")
	s.Contains(out, "(none)")
	s.Regexp(`Knowledge context\s+on`, out)
}

func (s *ChatSuite) TestUnknownCommandAndQuit() {
	_, err := s.send("/frobnicate")
	s.Equal(failure.KindInvalidInput, failure.KindOf(err))

	s.Empty(s.mustSend("   "))
	s.Contains(s.mustSend("/help"), "/project new <name>")

	for _, line := range []string{"/quit", "/exit", "exit", "QUIT"} {
		quit, err := s.chat.handleLine(context.Background(), line)
		s.NoError(err)
		s.True(quit, line)
	}
}

func TestCompleteSlash(t *testing.T) {
	got := completeSlash("/pro")
	require.NotEmpty(t, got)
	for _, c := range got {
		assert.Contains(t, c, "/pro")
	}
	assert.Len(t, got, 7)
	assert.Nil(t, completeSlash("hello"))
	assert.Equal(t, []string{"/models"}, completeSlash("/models"))
}
