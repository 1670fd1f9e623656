// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs the conversation loop for one user: it owns a project
// store, the selected provider and the research mode, and turns each user
// message into a provider call whose reply is appended to the active project.
//
// Controllers are independent. A Registry keeps many of them keyed by id for
// the HTTP server and evicts the ones that sit idle.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/logging"
	"github.com/jeranaias/obsidian-assistant/internal/model"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
	"github.com/jeranaias/obsidian-assistant/internal/research"
	"github.com/jeranaias/obsidian-assistant/internal/store"
)

// knowledgeHeading introduces the reference block in the system prompt.
const knowledgeHeading = "=== OBSIDIAN KNOWLEDGE BASE ==="

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a new Controller.
type Options struct {
	// Provider is the initial provider and model.
	Provider provider.Config

	// Deep starts the controller in deep research mode.
	Deep bool

	// Knowledge is reference text appended to every system prompt.
	// Empty disables it.
	Knowledge string

	Logger *zap.Logger
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller serializes message handling for one session.
type Controller struct {
	// turn is held for the whole of HandleUserMessage, so at most one
	// message per session is in flight.
	turn sync.Mutex

	// mu guards the settings below. It is never held across a provider call.
	mu        sync.RWMutex
	cfg       provider.Config
	deep      bool
	knowledge string

	store    *store.Store
	registry *provider.Registry
	selector *research.Selector
	logger   *zap.Logger

	now          func() time.Time
	lastActivity atomic.Int64
	busy         atomic.Bool
}

// NewController creates a controller with an empty project store.
func NewController(registry *provider.Registry, selector *research.Selector, opts Options) *Controller {
	c := &Controller{
		cfg:       opts.Provider,
		deep:      opts.Deep,
		knowledge: opts.Knowledge,
		store:     store.New(),
		registry:  registry,
		selector:  selector,
		logger:    logging.OrNop(opts.Logger).Named("session"),
		now:       time.Now,
	}
	c.touch()
	return c
}

// HandleUserMessage sends text to the configured provider in the context of
// the active project and returns the assistant's reply.
//
// The user message is appended before the provider is called and stays in
// the history when the call fails. A reply that arrives after ctx was
// cancelled is dropped and reported as a NetworkFailure.
func (c *Controller) HandleUserMessage(ctx context.Context, text string) (model.Message, error) {
	const op = "session.handle"

	c.turn.Lock()
	defer c.turn.Unlock()
	c.busy.Store(true)
	defer c.busy.Store(false)
	c.touch()

	if strings.TrimSpace(text) == "" {
		return model.Message{}, failure.New(failure.KindInvalidInput, op, "message must not be empty")
	}

	c.mu.RLock()
	cfg, deep, kb := c.cfg, c.deep, c.knowledge
	c.mu.RUnlock()

	active, ok := c.store.Active()
	if !ok {
		return model.Message{}, failure.New(failure.KindNoActiveProject, op,
			"no active project; create one with /project new <name>")
	}

	prior, err := c.store.History(active)
	if err != nil {
		return model.Message{}, err
	}
	if err := c.store.Append(active, model.NewUserMessage(text)); err != nil {
		return model.Message{}, err
	}

	decision, err := c.selector.Select(deep, cfg, text)
	if err != nil {
		c.logger.Warn("model selection failed",
			zap.Stringer("provider", cfg),
			zap.Bool("deep", deep),
			zap.Error(err))
		return model.Message{}, err
	}
	c.logger.Debug("model selected",
		zap.String("project", active.Short()),
		zap.String("decision", decision.String()),
		logging.Preview("prompt", text))

	reply, err := c.registry.Send(ctx, cfg.Kind, provider.Request{
		Prompt:  decision.Prompt,
		History: prior,
		Model:   decision.Model,
		System:  systemPrompt(decision.System, kb),
		Options: decision.Options,
	})
	if err != nil {
		return model.Message{}, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		c.logger.Info("discarding late reply",
			zap.String("project", active.Short()),
			zap.Error(ctxErr))
		return model.Message{}, failure.Wrap(failure.KindNetworkFailure, op,
			"reply arrived after the request was abandoned", ctxErr)
	}

	if reply.Timestamp.IsZero() {
		reply.Timestamp = c.now()
	}
	if err := c.store.Append(active, reply); err != nil {
		return model.Message{}, err
	}
	c.touch()
	return reply, nil
}

func systemPrompt(instructions, kb string) string {
	if kb == "" {
		return instructions
	}
	return instructions + "\n\n" + knowledgeHeading + "\n\n" + kb
}

// =============================================================================
// SETTINGS
// =============================================================================

// SetResearchMode turns deep research on or off for subsequent messages.
func (c *Controller) SetResearchMode(deep bool) {
	c.mu.Lock()
	c.deep = deep
	c.mu.Unlock()
	c.touch()
}

// ResearchMode reports whether deep research is on.
func (c *Controller) ResearchMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deep
}

// SetProvider switches the provider kind and keeps the current model id.
// A model that the new provider does not offer is reported as a
// ConfigError on the next message; use UseProvider to switch both.
func (c *Controller) SetProvider(kind provider.Kind) error {
	if len(c.registry.Catalog().Models(kind)) == 0 {
		return failure.Newf(failure.KindConfigError, "session.provider", "unknown provider %q", kind)
	}
	c.mu.Lock()
	c.cfg.Kind = kind
	c.mu.Unlock()
	c.touch()
	return nil
}

// UseProvider switches to kind and its default model.
func (c *Controller) UseProvider(kind provider.Kind) error {
	def, ok := c.registry.Catalog().Default(kind)
	if !ok {
		return failure.Newf(failure.KindConfigError, "session.provider", "unknown provider %q", kind)
	}
	c.mu.Lock()
	c.cfg = provider.Config{Kind: kind, Model: def}
	c.mu.Unlock()
	c.touch()
	return nil
}

// SetModel selects a model offered by the current provider.
func (c *Controller) SetModel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.registry.Catalog().Validate(c.cfg.Kind, id); err != nil {
		return err
	}
	c.cfg.Model = id
	c.touch()
	return nil
}

// Configure switches provider and model together. The pair is validated
// first; on error the current configuration is unchanged.
func (c *Controller) Configure(cfg provider.Config) error {
	if err := c.registry.Catalog().Validate(cfg.Kind, cfg.Model); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.touch()
	return nil
}

// Provider returns the current provider configuration.
func (c *Controller) Provider() provider.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetKnowledge replaces the reference text; empty disables it.
func (c *Controller) SetKnowledge(text string) {
	c.mu.Lock()
	c.knowledge = text
	c.mu.Unlock()
}

// Store exposes the project store for project management.
func (c *Controller) Store() *store.Store {
	return c.store
}

// Catalog returns the model catalog used to validate selections.
func (c *Controller) Catalog() *provider.Catalog {
	return c.registry.Catalog()
}

// =============================================================================
// ACTIVITY
// =============================================================================

func (c *Controller) touch() {
	c.lastActivity.Store(c.now().UnixNano())
}

// Touch records activity without sending a message.
func (c *Controller) Touch() {
	c.touch()
}

// LastActivity returns when the controller was last used.
func (c *Controller) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Busy reports whether a message is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// =============================================================================
// STATUS
// =============================================================================

// Status is a point-in-time snapshot of a controller.
type Status struct {
	Provider      provider.Config `json:"provider"`
	Deep          bool            `json:"deep"`
	Knowledge     bool            `json:"knowledge"`
	HistoryWindow int             `json:"history_window"`
	Projects      int             `json:"projects"`
	ActiveProject *store.Summary  `json:"active_project,omitempty"`
	LastActivity  time.Time       `json:"last_activity"`
}

// Status returns the current settings and active project.
func (c *Controller) Status() Status {
	c.mu.RLock()
	st := Status{
		Provider:  c.cfg,
		Deep:      c.deep,
		Knowledge: c.knowledge != "",
	}
	c.mu.RUnlock()

	st.HistoryWindow = c.registry.HistoryWindow()
	st.Projects = c.store.Count()
	st.LastActivity = c.LastActivity()
	if id, ok := c.store.Active(); ok {
		if sum, err := c.store.Get(id); err == nil {
			st.ActiveProject = &sum
		}
	}
	return st
}
