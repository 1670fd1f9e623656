// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds a session's projects and their message histories in
// memory. It is the only component that mutates history.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
	"github.com/jeranaias/obsidian-assistant/internal/util"
)

// MaxNameLength is the longest project name accepted, in runes.
const MaxNameLength = 100

// ProjectID identifies a project for the lifetime of the store.
type ProjectID string

// String returns the raw identifier.
func (id ProjectID) String() string {
	return string(id)
}

// Short returns the first eight characters, enough to disambiguate in lists.
func (id ProjectID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

type project struct {
	id        ProjectID
	name      string
	createdAt time.Time
	messages  []model.Message
}

// Summary is a read-only snapshot of one project.
type Summary struct {
	ID           ProjectID `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Active       bool      `json:"active"`
	LastMessage  string    `json:"last_message,omitempty"`
}

// Store is an in-memory collection of projects with at most one active.
//
// Invariants: histories are append-only (except for an explicit Clear),
// projects never share messages, and the active pointer is either empty or
// names an existing project.
type Store struct {
	mu       sync.RWMutex
	projects map[ProjectID]*project
	order    []ProjectID // creation order, oldest first
	active   ProjectID

	now   func() time.Time
	newID func() ProjectID
}

// New creates an empty store.
func New() *Store {
	return &Store{
		projects: make(map[ProjectID]*project),
		now:      time.Now,
		newID:    func() ProjectID { return ProjectID(uuid.NewString()) },
	}
}

// =============================================================================
// CORE OPERATIONS
// =============================================================================

// CreateProject adds an empty project and returns its id. The first project
// created in an empty store becomes active.
func (s *Store) CreateProject(name string) (ProjectID, error) {
	const op = "store.create"

	display, err := cleanName(op, name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTakenLocked(display, "") {
		return "", failure.Newf(failure.KindInvalidInput, op, "a project named %q already exists", display)
	}

	id := s.newID()
	s.projects[id] = &project{
		id:        id,
		name:      display,
		createdAt: s.now(),
	}
	s.order = append(s.order, id)

	if s.active == "" && len(s.projects) == 1 {
		s.active = id
	}
	return id, nil
}

// Activate makes id the active project.
func (s *Store) Activate(id ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return notFound("store.activate", id)
	}
	s.active = id
	return nil
}

// Active returns the active project id, if any.
func (s *Store) Active() (ProjectID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active != ""
}

// Append adds msg to the end of the project's history.
func (s *Store) Append(id ProjectID, msg model.Message) error {
	const op = "store.append"

	if !msg.Role.Valid() {
		return failure.Newf(failure.KindInvalidInput, op, "invalid message role %q", msg.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return notFound(op, id)
	}
	p.messages = append(p.messages, msg)
	return nil
}

// History returns a copy of the project's messages in append order.
func (s *Store) History(id ProjectID) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, notFound("store.history", id)
	}
	return model.Clone(p.messages), nil
}

// Delete removes a project and its history. When the active project is
// deleted, the most recently created remaining project becomes active, or
// none if the store is now empty.
func (s *Store) Delete(id ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return notFound("store.delete", id)
	}
	delete(s.projects, id)

	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.active == id {
		s.active = ""
		if n := len(s.order); n > 0 {
			s.active = s.order[n-1]
		}
	}
	return nil
}

// =============================================================================
// PROJECT MANAGEMENT
// =============================================================================

// Rename changes a project's display name.
func (s *Store) Rename(id ProjectID, name string) error {
	const op = "store.rename"

	display, err := cleanName(op, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return notFound(op, id)
	}
	if s.nameTakenLocked(display, id) {
		return failure.Newf(failure.KindInvalidInput, op, "a project named %q already exists", display)
	}
	p.name = display
	return nil
}

// Clear discards a project's history on explicit user request.
func (s *Store) Clear(id ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return notFound("store.clear", id)
	}
	p.messages = nil
	return nil
}

// Get returns a summary of one project.
func (s *Store) Get(id ProjectID) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return Summary{}, notFound("store.get", id)
	}
	return s.summaryLocked(p), nil
}

// Summaries lists every project in creation order.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.summaryLocked(s.projects[id]))
	}
	return out
}

// FindByName resolves a display name (case- and normalization-insensitive).
func (s *Store) FindByName(name string) (ProjectID, bool) {
	key := nameKey(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if nameKey(s.projects[id].name) == key {
			return id, true
		}
	}
	return "", false
}

// Resolve accepts a project id, an unambiguous id prefix, or a name.
func (s *Store) Resolve(ref string) (ProjectID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", failure.New(failure.KindInvalidInput, "store.resolve", "project reference must not be empty")
	}
	if id, ok := s.FindByName(ref); ok {
		return id, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.projects[ProjectID(ref)]; ok {
		return ProjectID(ref), nil
	}
	var match ProjectID
	for _, id := range s.order {
		if strings.HasPrefix(string(id), ref) {
			if match != "" {
				return "", failure.Newf(failure.KindInvalidInput, "store.resolve", "project reference %q is ambiguous", ref)
			}
			match = id
		}
	}
	if match == "" {
		return "", notFound("store.resolve", ProjectID(ref))
	}
	return match, nil
}

// Count returns the number of projects.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) summaryLocked(p *project) Summary {
	sum := Summary{
		ID:           p.id,
		Name:         p.name,
		CreatedAt:    p.createdAt,
		MessageCount: len(p.messages),
		Active:       p.id == s.active,
	}
	if last, ok := model.Last(p.messages); ok {
		sum.LastMessage = last.Preview(80)
	}
	return sum
}

func (s *Store) nameTakenLocked(display string, except ProjectID) bool {
	key := nameKey(display)
	for id, p := range s.projects {
		if id != except && nameKey(p.name) == key {
			return true
		}
	}
	return false
}

// cleanName trims and NFC-normalizes a display name.
func cleanName(op, name string) (string, error) {
	display := norm.NFC.String(strings.TrimSpace(name))
	if display == "" {
		return "", failure.New(failure.KindInvalidInput, op, "project name must not be empty")
	}
	if util.RuneLen(display) > MaxNameLength {
		return "", failure.Newf(failure.KindInvalidInput, op, "project name exceeds %d characters", MaxNameLength)
	}
	return display, nil
}

// nameKey is the comparison form of a name: NFC, trimmed, case-folded.
func nameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

func notFound(op string, id ProjectID) error {
	return failure.Newf(failure.KindNotFound, op, "project %q not found", string(id))
}
