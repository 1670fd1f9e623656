// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// DefaultHistoryWindow is how many prior messages are sent upstream as context
// when no window is configured.
const DefaultHistoryWindow = 10

// Window returns the most recent max messages of history, evicting the oldest
// first. The result is always a fresh slice so callers may not alias the
// store's backing array. A non-positive max disables truncation.
func Window(history []Message, max int) []Message {
	start := 0
	if max > 0 && len(history) > max {
		start = len(history) - max
	}
	out := make([]Message, len(history)-start)
	copy(out, history[start:])
	return out
}

// Clone returns an independent copy of a message slice.
func Clone(history []Message) []Message {
	return Window(history, 0)
}

// Last returns the final message of history, if any.
func Last(history []Message) (Message, bool) {
	if len(history) == 0 {
		return Message{}, false
	}
	return history[len(history)-1], true
}

// CountByRole tallies messages per role.
func CountByRole(history []Message) map[Role]int {
	counts := make(map[Role]int, 2)
	for _, m := range history {
		counts[m.Role]++
	}
	return counts
}

// EstimateTokens sums the rough token estimates of every message.
func EstimateTokens(history []Message) int {
	total := 0
	for _, m := range history {
		total += m.EstimateTokens()
	}
	return total
}
