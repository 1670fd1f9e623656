// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/model"
	"github.com/jeranaias/obsidian-assistant/internal/util"
)

// Format selects an export encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts "md", "markdown" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", failure.Newf(failure.KindInvalidInput, "store.export", "unknown export format %q", s)
	}
}

type exportDoc struct {
	ID        ProjectID       `json:"id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	Messages  []model.Message `json:"messages"`
}

// Export writes one project's history to w. Export is the only way history
// leaves the process; nothing is written to disk by the store itself.
func (s *Store) Export(w io.Writer, id ProjectID, format Format) error {
	const op = "store.export"

	s.mu.RLock()
	p, ok := s.projects[id]
	if !ok {
		s.mu.RUnlock()
		return notFound(op, id)
	}
	doc := exportDoc{
		ID:        p.id,
		Name:      p.name,
		CreatedAt: p.createdAt,
		Messages:  model.Clone(p.messages),
	}
	s.mu.RUnlock()

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return failure.Wrap(failure.KindInvalidInput, op, "failed to encode project", err)
		}
		return nil
	case FormatMarkdown:
		_, err := io.WriteString(w, renderMarkdown(doc))
		return err
	default:
		return failure.Newf(failure.KindInvalidInput, op, "unknown export format %q", format)
	}
}

func renderMarkdown(doc exportDoc) string {
	var sb strings.Builder
	sb.WriteString("# " + doc.Name + "\n\n")
	sb.WriteString("Created: " + doc.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range doc.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "**")
		if attr := msg.Attribution(); attr != "" {
			sb.WriteString(" · `" + attr + "`")
		}
		sb.WriteString(" (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// FormatSummaries renders a plain-text project table.
func FormatSummaries(summaries []Summary) string {
	if len(summaries) == 0 {
		return "No projects yet. Create one with /project new <name>."
	}

	var sb strings.Builder
	sb.WriteString("  " + util.PadRight("ID", 9) + " " + util.PadRight("Name", 24) + " " +
		util.PadRight("Created", 16) + " " + util.PadRight("Msgs", 5) + " Last message\n")
	sb.WriteString(strings.Repeat("-", 80) + "\n")

	for _, s := range summaries {
		marker := "  "
		if s.Active {
			marker = "* "
		}
		sb.WriteString(marker +
			util.PadRight(s.ID.Short(), 9) + " " +
			util.PadRight(s.Name, 24) + " " +
			util.PadRight(s.CreatedAt.Format("2006-01-02 15:04"), 16) + " " +
			util.PadRight(strconv.Itoa(s.MessageCount), 5) + " " +
			util.TruncateWidth(s.LastMessage, 20) + "\n")
	}
	return sb.String()
}
