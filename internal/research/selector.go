// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package research decides, per message, which model to call and what prompt
// to send. In deep research mode it overrides the model with the strongest
// one registered for the provider and wraps the prompt in a structured
// instruction template; in normal mode it passes both through unchanged.
//
// The selector is a pure function of its inputs and its injected tables. It
// performs no I/O.
package research

import (
	"fmt"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
)

// ============================================================================
// GENERATION PARAMETERS
// ============================================================================

// Params are the generation options for one provider in each mode.
type Params struct {
	Normal provider.Options
	Deep   provider.Options
}

// DefaultParams returns the per-provider generation options. Deep research
// lowers temperature for more careful answers and raises the token budget.
func DefaultParams() map[provider.Kind]Params {
	return map[provider.Kind]Params{
		provider.KindCommercial: {
			Normal: provider.Options{Temperature: 0.7, MaxTokens: 1000},
			Deep:   provider.Options{Temperature: 0.5, MaxTokens: 2500},
		},
		provider.KindCommunity: {
			Normal: provider.Options{Temperature: 0.7, MaxTokens: 500},
			Deep:   provider.Options{Temperature: 0.5, MaxTokens: 1500},
		},
	}
}

// DefaultStrongest returns the built-in "strongest model" table.
func DefaultStrongest() map[provider.Kind]string {
	return map[provider.Kind]string{
		provider.KindCommercial: "gpt-4",
		provider.KindCommunity:  "meta-llama/Llama-2-7b-chat-hf",
	}
}

// ============================================================================
// DECISION
// ============================================================================

// Decision is the outcome of one Select call.
type Decision struct {
	// Model is the provider-scoped model id to call.
	Model string `json:"model"`

	// Prompt is the text to send as the user turn.
	Prompt string `json:"prompt"`

	// System is the instruction text for the system slot.
	System string `json:"system"`

	// Options are the generation parameters for this mode and provider.
	Options provider.Options `json:"options"`

	// Deep records whether deep research mode was applied.
	Deep bool `json:"deep"`

	// Reason explains why this model was chosen.
	Reason string `json:"reason"`
}

// String returns a human-readable summary of the decision.
func (d Decision) String() string {
	mode := "normal"
	if d.Deep {
		mode = "deep"
	}
	return fmt.Sprintf("%s model=%s temp=%.1f max_tokens=%d: %s",
		mode, d.Model, d.Options.Temperature, d.Options.MaxTokens, d.Reason)
}

// ============================================================================
// SELECTOR
// ============================================================================

// Selector maps (mode, provider config, prompt) to a Decision.
type Selector struct {
	strongest map[provider.Kind]string
	params    map[provider.Kind]Params
	catalog   *provider.Catalog
}

// NewSelector creates a selector. The strongest table is copied, so later
// changes to the caller's map have no effect. A nil catalog means
// provider.DefaultCatalog.
func NewSelector(strongest map[provider.Kind]string, catalog *provider.Catalog) *Selector {
	if catalog == nil {
		catalog = provider.DefaultCatalog()
	}
	table := make(map[provider.Kind]string, len(strongest))
	for k, v := range strongest {
		table[k] = v
	}
	return &Selector{
		strongest: table,
		params:    DefaultParams(),
		catalog:   catalog,
	}
}

// WithParams replaces the generation parameter table.
func (s *Selector) WithParams(params map[provider.Kind]Params) *Selector {
	table := make(map[provider.Kind]Params, len(params))
	for k, v := range params {
		table[k] = v
	}
	s.params = table
	return s
}

// Strongest returns the designated strongest model for kind.
func (s *Selector) Strongest(kind provider.Kind) (string, bool) {
	m, ok := s.strongest[kind]
	return m, ok && m != ""
}

// Select chooses the model and prompt for one message.
//
// The configured model must be valid for the configured provider in both
// modes, so a provider switch without a model re-selection is reported here
// rather than at send time. In deep mode a provider with no strongest entry
// is a ConfigError; there is no fallback to the configured model.
func (s *Selector) Select(deep bool, cfg provider.Config, prompt string) (Decision, error) {
	const op = "research.select"

	if err := s.catalog.Validate(cfg.Kind, cfg.Model); err != nil {
		return Decision{}, err
	}

	params := s.params[cfg.Kind]

	if !deep {
		return Decision{
			Model:   cfg.Model,
			Prompt:  prompt,
			System:  NormalInstructions,
			Options: params.Normal,
			Reason:  "configured model",
		}, nil
	}

	strongest, ok := s.Strongest(cfg.Kind)
	if !ok {
		return Decision{}, failure.Newf(failure.KindConfigError, op,
			"no strongest model registered for provider %q", cfg.Kind)
	}

	reason := fmt.Sprintf("deep research: strongest %s model", cfg.Kind.DisplayName())
	if strongest == cfg.Model {
		reason += " (already selected)"
	}

	return Decision{
		Model:   strongest,
		Prompt:  Augment(prompt),
		System:  DeepInstructions,
		Options: params.Deep,
		Deep:    true,
		Reason:  reason,
	}, nil
}
