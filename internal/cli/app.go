// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"go.uber.org/zap"

	"github.com/jeranaias/obsidian-assistant/internal/config"
	"github.com/jeranaias/obsidian-assistant/internal/knowledge"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
	"github.com/jeranaias/obsidian-assistant/internal/research"
	"github.com/jeranaias/obsidian-assistant/internal/session"
)

// =============================================================================
// WIRING
// =============================================================================

// components are the shared, stateless pieces built from one config.
// Controllers built from them never share projects.
type components struct {
	cfg       *config.Config
	defaults  provider.Config
	providers *provider.Registry
	selector  *research.Selector
	kb        *knowledge.Base
	logger    *zap.Logger
}

// buildComponents wires both adapters, the selector and the knowledge base.
// Credentials for the configured provider are checked by each command
// before this runs. The other adapter may still lack a key and reports
// AuthFailure if a session switches to it.
func buildComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	catalog := provider.DefaultCatalog()

	openai := provider.NewOpenAI(cfg.APIKey(provider.KindCommercial)).
		WithBaseURL(cfg.BaseURL(provider.KindCommercial)).
		WithTimeout(cfg.Timeout()).
		WithLogger(logger)

	hf := provider.NewHuggingFace(cfg.APIKey(provider.KindCommunity)).
		WithBaseURL(cfg.BaseURL(provider.KindCommunity)).
		WithTimeout(cfg.Timeout()).
		WithLogger(logger)

	providers := provider.NewRegistry(catalog).
		Register(openai).
		Register(hf).
		WithHistoryWindow(cfg.Session.HistoryWindow).
		WithLogger(logger)

	defaults, err := cfg.ProviderConfig()
	if err != nil {
		return nil, err
	}
	kb, err := loadKnowledge(cfg)
	if err != nil {
		return nil, err
	}

	return &components{
		cfg:       cfg,
		defaults:  defaults,
		providers: providers,
		selector:  research.NewSelector(cfg.Strongest(), catalog),
		kb:        kb,
		logger:    logger,
	}, nil
}

func loadKnowledge(cfg *config.Config) (*knowledge.Base, error) {
	if cfg.Session.KnowledgeFile != "" {
		return knowledge.LoadFile(cfg.Session.KnowledgeFile)
	}
	return knowledge.Load()
}

// newController builds a fresh session with the configured defaults.
func (c *components) newController() *session.Controller {
	opts := session.Options{
		Provider: c.defaults,
		Deep:     c.cfg.Research.DeepDefault,
		Logger:   c.logger,
	}
	if c.cfg.Session.KnowledgeContext {
		opts.Knowledge = c.kb.Context()
	}
	return session.NewController(c.providers, c.selector, opts)
}

// components builds the shared pieces from the loaded config.
func (a *app) components() (*components, error) {
	return buildComponents(a.cfg, a.logger)
}
