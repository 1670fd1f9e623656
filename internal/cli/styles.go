// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for command output.
//
// Colors are disabled for non-TTY output and when NO_COLOR is set, so piped
// answers stay plain text.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and the chat banner.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// SectionStyle is used for section headers within command output.
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			MarginTop(1)

	// LabelStyle is used for left-aligned field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(20)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for hints and reply attribution.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// DeepStyle marks deep research mode in the prompt and status.
	DeepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("171")).
			Bold(true)

	// PromptStyle is the chat input prompt.
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal rule, 70 cells wide by default.
func RenderSeparator(width ...int) string {
	w := 70
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("=", w))
}

// RenderLabel renders a label with consistent width.
func RenderLabel(label string, width ...int) string {
	if len(width) > 0 && width[0] > 0 {
		return LabelStyle.Width(width[0]).Render(label)
	}
	return LabelStyle.Render(label)
}

// RenderField renders "label value" on one line.
func RenderField(label, value string) string {
	return RenderLabel(label) + ValueStyle.Render(value)
}

// RenderOnOff renders a boolean as a colored on/off.
func RenderOnOff(on bool) string {
	if on {
		return SuccessStyle.Render("on")
	}
	return DimStyle.Render("off")
}
