// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package research

import "strings"

// Augmentation markers. Each phrase appears verbatim in every augmented
// prompt so callers and tests can confirm which directives were applied.
const (
	MarkerReasoning    = "Think step by step"
	MarkerPerspectives = "at least three distinct perspectives"
	MarkerProsCons     = "pros and cons"
	MarkerLength       = "two to three times longer"
)

// Markers returns the four augmentation markers in template order.
func Markers() []string {
	return []string{MarkerReasoning, MarkerPerspectives, MarkerProsCons, MarkerLength}
}

// questionHeading separates the instructions from the user's own text.
const questionHeading = "=== QUESTION ==="

// deepTemplate wraps the user's question in deep research mode. The question
// is appended after questionHeading, never interpolated, so its content is
// passed through byte for byte.
const deepTemplate = `DEEP RESEARCH REQUEST. Work through the question below thoroughly before answering.

1. REASONING: ` + MarkerReasoning + `. Lay out your reasoning before the conclusion and show how each step follows from the last.

2. PERSPECTIVES: Answer from ` + MarkerPerspectives + `:
   - Beginner: plain language, no assumed knowledge, define every term.
   - Advanced: power-user techniques, edge cases and performance concerns.
   - Practical: a concrete workflow or example the reader can copy into their vault today.

3. TRADE-OFFS: Compare the viable approaches with explicit ` + MarkerProsCons + ` for each, and say when you would pick one over another.

4. DEPTH: Make this answer ` + MarkerLength + ` and more detailed than a normal reply. Include examples, query or template snippets where they help, and call out common pitfalls.

5. ACCURACY: Flag anything that depends on plugin or app version, and say so when you are unsure instead of guessing.

`

// Augment wraps prompt in the deep research template.
func Augment(prompt string) string {
	var b strings.Builder
	b.Grow(len(deepTemplate) + len(questionHeading) + len(prompt) + 2)
	b.WriteString(deepTemplate)
	b.WriteString(questionHeading)
	b.WriteByte('\n')
	b.WriteString(prompt)
	return b.String()
}

// IsAugmented reports whether prompt was produced by Augment.
func IsAugmented(prompt string) bool {
	return strings.HasPrefix(prompt, deepTemplate+questionHeading+"\n")
}

// NormalInstructions is the system text sent with every normal-mode request.
const NormalInstructions = `You are an expert assistant for Obsidian, the Markdown knowledge-base app, with deep knowledge of its core features and its community plugins, especially Dataview and Templater.

When you answer:
- Start with a direct answer, then explain.
- Give working examples in fenced code blocks (dataview, javascript or markdown) whenever syntax is involved.
- Prefer approaches that work with core Obsidian before recommending a plugin.
- Keep answers focused; the user can ask a follow-up for more depth.
- If a request is ambiguous, state the assumption you made.`

// DeepInstructions is the system text sent in deep research mode. The
// per-question structure lives in the augmented prompt itself.
const DeepInstructions = `You are an expert research assistant for Obsidian, the Markdown knowledge-base app, and its community plugins, especially Dataview and Templater.

You are in deep research mode. Follow the structure requested in the user's message exactly, use headings for each section, and favor completeness and correctness over brevity.`
