// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/logging"
)

// DefaultSweepInterval is how often Run checks for idle sessions.
const DefaultSweepInterval = time.Minute

// Factory builds a fresh controller for a new session.
type Factory func() *Controller

// RegistryConfig holds limits for a Registry.
type RegistryConfig struct {
	// IdleTimeout evicts sessions unused for this long. Zero disables eviction.
	IdleTimeout time.Duration

	// MaxSessions caps live sessions. Zero means unlimited.
	MaxSessions int

	// SweepInterval is the janitor period for Run.
	SweepInterval time.Duration
}

// Registry tracks independent controllers keyed by session id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Controller

	factory Factory
	cfg     RegistryConfig
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, cfg RegistryConfig, logger *zap.Logger) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Registry{
		sessions: make(map[string]*Controller),
		factory:  factory,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("sessions"),
	}
}

// Create starts a new session. When the registry is full, idle sessions are
// swept first; if it is still full a QuotaExceeded error is returned.
func (r *Registry) Create() (string, *Controller, error) {
	if r.cfg.MaxSessions > 0 && r.Len() >= r.cfg.MaxSessions {
		r.Sweep(time.Now())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		return "", nil, failure.Newf(failure.KindQuotaExceeded, "session.create",
			"session limit of %d reached", r.cfg.MaxSessions)
	}

	id := generateSessionID()
	c := r.factory()
	r.sessions[id] = c

	r.logger.Info("session created", zap.String("session", id), zap.Int("live", len(r.sessions)))
	return id, c, nil
}

// Get returns the controller for id.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	c, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, failure.Newf(failure.KindNotFound, "session.get", "session %q not found", id)
	}
	return c, nil
}

// Remove ends a session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return failure.Newf(failure.KindNotFound, "session.remove", "session %q not found", id)
	}
	delete(r.sessions, id)
	r.logger.Info("session removed", zap.String("session", id))
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Sweep removes sessions idle for at least IdleTimeout as of now. Sessions
// with a message in flight are kept. Returns the number removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, c := range r.sessions {
		if c.Busy() {
			continue
		}
		if idle := now.Sub(c.LastActivity()); idle >= r.cfg.IdleTimeout {
			delete(r.sessions, id)
			removed++
			r.logger.Info("session expired", zap.String("session", id), zap.Duration("idle", idle))
		}
	}
	return removed
}

// Run sweeps idle sessions every SweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// generateSessionID creates a unique session ID.
func generateSessionID() string {
	return "sess_" + uuid.NewString()
}

// FormatDuration renders d as "45s", "3m" or "3m 20s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
