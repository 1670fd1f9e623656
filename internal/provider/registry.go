// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
	"github.com/jeranaias/obsidian-assistant/internal/util"
)

// Registry dispatches sends to the backend registered for a kind, after
// validating the model against the catalog and truncating history. It is
// read-only once built and may be shared by many sessions.
type Registry struct {
	providers map[Kind]Provider
	catalog   *Catalog
	window    int
	logger    *zap.Logger
}

// NewRegistry creates a registry validating against catalog. A nil catalog
// means DefaultCatalog.
func NewRegistry(catalog *Catalog) *Registry {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Registry{
		providers: make(map[Kind]Provider),
		catalog:   catalog,
		window:    model.DefaultHistoryWindow,
		logger:    zap.NewNop(),
	}
}

// Register adds a backend, replacing any previous one of the same kind.
func (r *Registry) Register(p Provider) *Registry {
	r.providers[p.Kind()] = p
	return r
}

// WithHistoryWindow sets how many prior messages are forwarded per send.
// Non-positive values keep the default.
func (r *Registry) WithHistoryWindow(n int) *Registry {
	if n > 0 {
		r.window = n
	}
	return r
}

// WithLogger sets the logger.
func (r *Registry) WithLogger(logger *zap.Logger) *Registry {
	if logger != nil {
		r.logger = logger.Named("provider")
	}
	return r
}

// Catalog returns the catalog models are validated against.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// HistoryWindow returns the configured history window.
func (r *Registry) HistoryWindow() int {
	return r.window
}

// Has reports whether a backend is registered for kind.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.providers[kind]
	return ok
}

// Send validates req for kind and forwards it to that backend. The returned
// message always has role assistant and carries the requested model id.
func (r *Registry) Send(ctx context.Context, kind Kind, req Request) (model.Message, error) {
	const op = "provider.send"

	if strings.TrimSpace(req.Prompt) == "" {
		return model.Message{}, failure.New(failure.KindInvalidInput, op, "prompt must not be empty")
	}
	p, ok := r.providers[kind]
	if !ok {
		return model.Message{}, failure.Newf(failure.KindConfigError, op, "provider %q is not registered", kind)
	}
	if err := r.catalog.Validate(kind, req.Model); err != nil {
		return model.Message{}, err
	}

	req.History = model.Window(req.History, r.window)

	start := time.Now()
	msg, err := p.Send(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Warn("send failed",
			zap.String("provider", kind.String()),
			zap.String("model", req.Model),
			zap.Stringer("kind", failure.KindOf(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return model.Message{}, err
	}

	msg.Role = model.RoleAssistant
	msg.Provider = kind.String()
	msg.Model = req.Model

	r.logger.Info("send completed",
		zap.String("provider", kind.String()),
		zap.String("model", req.Model),
		zap.Int("history", len(req.History)),
		zap.Int("prompt_runes", util.RuneLen(req.Prompt)),
		zap.Int("reply_runes", util.RuneLen(msg.Content)),
		zap.Duration("elapsed", elapsed))

	return msg, nil
}
