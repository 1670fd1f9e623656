// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"sort"
	"sync"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes one model advertised by a backend.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Kind is the backend that serves the model
	Kind Kind `json:"provider"`

	// Tier categorizes the model's capability level (Fast, Balanced, Powerful)
	Tier string `json:"tier"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`

	// Default marks the model selected when the user switches to this backend
	Default bool `json:"default,omitempty"`
}

// TierIcon returns an icon character for the model tier.
func (m ModelInfo) TierIcon() string {
	switch m.Tier {
	case "Fast":
		return "z"
	case "Balanced":
		return "~"
	case "Powerful":
		return "&"
	default:
		return "?"
	}
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is the set of models each backend advertises. A model id is only
// valid for the kind it is registered under.
type Catalog struct {
	mu     sync.RWMutex
	models map[Kind][]ModelInfo
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{models: make(map[Kind][]ModelInfo)}
}

// DefaultCatalog returns the built-in model list for both backends.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, m := range builtinModels {
		c.Register(m)
	}
	return c
}

var builtinModels = []ModelInfo{
	{
		ID:          "gpt-3.5-turbo",
		Name:        "GPT-3.5 Turbo",
		Kind:        KindCommercial,
		Tier:        "Fast",
		Description: "Quick, inexpensive answers for everyday questions",
		Default:     true,
	},
	{
		ID:          "gpt-4o-mini",
		Name:        "GPT-4o mini",
		Kind:        KindCommercial,
		Tier:        "Balanced",
		Description: "Good reasoning at low cost",
	},
	{
		ID:          "gpt-4",
		Name:        "GPT-4",
		Kind:        KindCommercial,
		Tier:        "Powerful",
		Description: "Most capable commercial model, used for deep research",
	},
	{
		ID:          "microsoft/DialoGPT-medium",
		Name:        "DialoGPT Medium",
		Kind:        KindCommunity,
		Tier:        "Fast",
		Description: "Conversational model tuned for short dialogue",
		Default:     true,
	},
	{
		ID:          "gpt2",
		Name:        "GPT-2",
		Kind:        KindCommunity,
		Tier:        "Fast",
		Description: "Small general-purpose text generator",
	},
	{
		ID:          "meta-llama/Llama-2-7b-chat-hf",
		Name:        "Llama 2 7B Chat",
		Kind:        KindCommunity,
		Tier:        "Powerful",
		Description: "Largest community chat model, used for deep research",
	},
}

// Register adds or replaces a model under its kind. Registering a second
// default for a kind clears the previous default.
func (c *Catalog) Register(info ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.models[info.Kind]
	replaced := false
	for i := range list {
		if info.Default {
			list[i].Default = false
		}
		if list[i].ID == info.ID {
			list[i] = info
			replaced = true
		}
	}
	if !replaced {
		list = append(list, info)
	}
	c.models[info.Kind] = list
}

// Models returns the models advertised for kind in registration order.
func (c *Catalog) Models(kind Kind) []ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ModelInfo, len(c.models[kind]))
	copy(out, c.models[kind])
	return out
}

// Kinds returns every kind with at least one model, sorted.
func (c *Catalog) Kinds() []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()

	kinds := make([]Kind, 0, len(c.models))
	for k, list := range c.models {
		if len(list) > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Lookup finds a model by id under kind.
func (c *Catalog) Lookup(kind Kind, id string) (ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.models[kind] {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// Valid reports whether id is advertised by kind.
func (c *Catalog) Valid(kind Kind, id string) bool {
	_, ok := c.Lookup(kind, id)
	return ok
}

// Validate returns a ConfigError when id is empty or not advertised by kind.
func (c *Catalog) Validate(kind Kind, id string) error {
	if id == "" {
		return failure.Newf(failure.KindConfigError, "provider.validate",
			"no model selected for %s", kind)
	}
	if !c.Valid(kind, id) {
		return failure.Newf(failure.KindConfigError, "provider.validate",
			"model %q is not offered by %s", id, kind)
	}
	return nil
}

// Default returns the default model for kind, falling back to the first
// registered model.
func (c *Catalog) Default(kind Kind) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.models[kind]
	for _, m := range list {
		if m.Default {
			return m.ID, true
		}
	}
	if len(list) > 0 {
		return list[0].ID, true
	}
	return "", false
}
