// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small string and file helpers shared by the CLI,
// the store exporters and the config layer.
package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// UNICODE: all truncation is rune- or cell-aware so multi-byte characters in
// note titles and prompts are never split.

// TruncateRunes truncates a string to a maximum number of runes (characters).
// If the string is truncated, "..." is appended within the limit.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateWidth truncates a string to a maximum display width in terminal
// cells. Wide characters (CJK, emoji) count as two cells.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// StringWidth returns the display width of a string in terminal cells.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// PadRight pads s with spaces to the given display width, truncating first
// when it is already wider.
func PadRight(s string, width int) string {
	return runewidth.FillRight(TruncateWidth(s, width), width)
}

// SingleLine collapses all whitespace runs (including newlines) to one space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RuneLen returns the number of runes (characters) in a string.
func RuneLen(s string) int {
	return len([]rune(s))
}
