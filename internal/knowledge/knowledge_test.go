// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
)

func TestLoad_Embedded(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"dataview", "templater", "tips", "problems"}, b.Categories())
	assert.Equal(t, 10, b.Len())
}

func TestContext_SectionOrder(t *testing.T) {
	ctx := MustLoad().Context()

	headings := []string{
		"=== YOUR ROLE ===",
		"=== DATAVIEW EXAMPLES ===",
		"=== TEMPLATER EXAMPLES ===",
		"=== GENERAL OBSIDIAN TIPS ===",
		"=== COMMON PROBLEMS & SOLUTIONS ===",
	}
	last := -1
	for _, h := range headings {
		idx := strings.Index(ctx, h)
		require.GreaterOrEqual(t, idx, 0, h)
		assert.Greater(t, idx, last, "%s out of order", h)
		last = idx
	}

	assert.Contains(t, ctx, "Problem: Notes not syncing between devices\nSolution: ")
	assert.Contains(t, ctx, "\nHow do I create a basic DataView table?\n")
}

func TestSearch(t *testing.T) {
	b := MustLoad()

	hits := b.Search("TASK")
	require.NotEmpty(t, hits)
	found := false
	for _, h := range hits {
		if h.Topic == "task_query" {
			found = true
			assert.Equal(t, "DataView", h.Label)
		}
	}
	assert.True(t, found)

	hits = b.Search("re-sync")
	require.Len(t, hits, 1)
	assert.Equal(t, "problems", hits[0].Category)

	assert.Empty(t, b.Search("   "))
	assert.Empty(t, b.Search("kubernetes"))
}

func TestLookup(t *testing.T) {
	b := MustLoad()

	e, ok := b.Lookup("templater", "daily_note")
	require.True(t, ok)
	assert.Contains(t, e.Answer, "tp.date.now")

	_, ok = b.Lookup("templater", "missing")
	assert.False(t, ok)

	s, ok := b.Section("problems")
	require.True(t, ok)
	assert.Equal(t, StyleProblem, s.Style)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"syntax", "sections: [\n"},
		{"missing category", "sections:\n  - title: X\n"},
		{"duplicate category", "sections:\n  - category: a\n  - category: a\n"},
		{"empty answer", "sections:\n  - category: a\n    entries:\n      - question: q\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.True(t, failure.IsConfig(err))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	data := "role: Be brief.\nsections:\n  - category: custom\n    label: Custom\n    entries:\n      - topic: one\n        question: Q?\n        answer: A.\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	b, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "=== YOUR ROLE ===\nBe brief.\n\n=== CUSTOM ===\n\nQ?\nA.\n", b.Context())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, failure.IsConfig(err))
}
