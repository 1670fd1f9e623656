// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/knowledge"
)

func newKBCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Browse the built-in Obsidian knowledge base",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "search <term>",
		Short: "Find entries mentioning a term",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := loadKnowledge(a.cfg)
			if err != nil {
				return err
			}
			term := strings.Join(args, " ")
			printHits(a.stdout, kb.Search(term), term)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [category]",
		Short: "Print the knowledge base, or one category of it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := loadKnowledge(a.cfg)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprint(a.stdout, kb.Context())
				return nil
			}
			section, ok := kb.Section(args[0])
			if !ok {
				return failure.Newf(failure.KindNotFound, "kb.show",
					"no category %q (have %s)", args[0], strings.Join(kb.Categories(), ", "))
			}
			printSection(a.stdout, section)
			return nil
		},
	})

	return cmd
}

// printHits lists search results with their category label.
func printHits(w io.Writer, hits []knowledge.Hit, term string) {
	if len(hits) == 0 {
		fmt.Fprintf(w, "No entries mention %q.\n", term)
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%s %s\n", DimStyle.Render("["+h.Label+"]"), TitleStyle.Render(h.Question))
		fmt.Fprintln(w, indent(h.Answer, "  "))
		fmt.Fprintln(w)
	}
}

func printSection(w io.Writer, s knowledge.Section) {
	fmt.Fprintln(w, SectionStyle.Render(s.Title))
	for _, e := range s.Entries {
		fmt.Fprintln(w)
		fmt.Fprintln(w, TitleStyle.Render(strings.TrimSpace(e.Question)))
		fmt.Fprintln(w, indent(strings.TrimSpace(e.Answer), "  "))
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
