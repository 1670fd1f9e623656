// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package knowledge holds the built-in Obsidian reference entries that are
// spliced into the system prompt and searched by the /kb command.
//
// Entries ship embedded in the binary. A user file with the same YAML shape
// can replace them via LoadFile.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
)

//go:embed kb.yaml
var embedded []byte

// StyleProblem renders entries as Problem/Solution pairs.
const StyleProblem = "problem"

// Entry is one question/answer pair.
type Entry struct {
	Topic    string `yaml:"topic" json:"topic"`
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// Section groups the entries of one category.
type Section struct {
	Category string  `yaml:"category" json:"category"`
	Title    string  `yaml:"title" json:"title"`
	Label    string  `yaml:"label" json:"label"`
	Style    string  `yaml:"style,omitempty" json:"style,omitempty"`
	Entries  []Entry `yaml:"entries" json:"entries"`
}

// Hit is one search result.
type Hit struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Topic    string `json:"topic"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Base is a parsed knowledge file. It is read-only after load.
type Base struct {
	Role     string    `yaml:"role"`
	Sections []Section `yaml:"sections"`

	context string
}

// Load parses the embedded knowledge base.
func Load() (*Base, error) {
	return Parse(embedded)
}

// MustLoad is Load for callers that cannot proceed without the built-in set.
func MustLoad() *Base {
	b, err := Load()
	if err != nil {
		panic(err)
	}
	return b
}

// LoadFile parses a user-supplied knowledge file.
func LoadFile(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfigError, "knowledge.load",
			fmt.Sprintf("failed to read %s", path), err)
	}
	return Parse(data)
}

// Parse decodes YAML into a Base and validates it.
func Parse(data []byte) (*Base, error) {
	const op = "knowledge.parse"

	var b Base
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, failure.Wrap(failure.KindConfigError, op, "invalid knowledge file", err)
	}

	seen := make(map[string]bool, len(b.Sections))
	for i, s := range b.Sections {
		if s.Category == "" {
			return nil, failure.Newf(failure.KindConfigError, op, "section %d has no category", i)
		}
		if seen[s.Category] {
			return nil, failure.Newf(failure.KindConfigError, op, "duplicate category %q", s.Category)
		}
		seen[s.Category] = true
		for j, e := range s.Entries {
			if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
				return nil, failure.Newf(failure.KindConfigError, op,
					"%s entry %d needs both a question and an answer", s.Category, j)
			}
		}
	}

	b.context = b.render()
	return &b, nil
}

// ===== QUERIES =====

// Context returns the whole base rendered as prompt text.
func (b *Base) Context() string {
	return b.context
}

func (b *Base) render() string {
	var sb strings.Builder
	if role := strings.TrimSpace(b.Role); role != "" {
		sb.WriteString("=== YOUR ROLE ===\n")
		sb.WriteString(role)
		sb.WriteString("\n\n")
	}
	for _, s := range b.Sections {
		title := s.Title
		if title == "" {
			title = strings.ToUpper(s.Category)
		}
		sb.WriteString("=== " + title + " ===\n")
		for _, e := range s.Entries {
			q, a := strings.TrimSpace(e.Question), strings.TrimSpace(e.Answer)
			if s.Style == StyleProblem {
				sb.WriteString("\nProblem: " + q + "\nSolution: " + a + "\n")
			} else {
				sb.WriteString("\n" + q + "\n" + a + "\n")
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// Search returns the entries whose question or answer contains term,
// ignoring case. An empty term matches nothing.
func (b *Base) Search(term string) []Hit {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	var hits []Hit
	for _, s := range b.Sections {
		for _, e := range s.Entries {
			if strings.Contains(strings.ToLower(e.Question), term) ||
				strings.Contains(strings.ToLower(e.Answer), term) {
				hits = append(hits, Hit{
					Category: s.Category,
					Label:    s.Label,
					Topic:    e.Topic,
					Question: strings.TrimSpace(e.Question),
					Answer:   strings.TrimSpace(e.Answer),
				})
			}
		}
	}
	return hits
}

// Lookup finds an entry by category and topic.
func (b *Base) Lookup(category, topic string) (Entry, bool) {
	for _, s := range b.Sections {
		if s.Category != category {
			continue
		}
		for _, e := range s.Entries {
			if e.Topic == topic {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Section returns the section for category.
func (b *Base) Section(category string) (Section, bool) {
	for _, s := range b.Sections {
		if s.Category == category {
			return s, true
		}
	}
	return Section{}, false
}

// Categories lists the categories in file order.
func (b *Base) Categories() []string {
	out := make([]string, len(b.Sections))
	for i, s := range b.Sections {
		out[i] = s.Category
	}
	return out
}

// Len counts entries across all sections.
func (b *Base) Len() int {
	n := 0
	for _, s := range b.Sections {
		n += len(s.Entries)
	}
	return n
}
