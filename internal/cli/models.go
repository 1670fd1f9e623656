// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/obsidian-assistant/internal/provider"
	"github.com/jeranaias/obsidian-assistant/internal/util"
)

// modelRow is one line of `models --json`.
type modelRow struct {
	provider.ModelInfo
	Strongest bool `json:"strongest,omitempty"`
}

func newModelsCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models each provider offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := provider.DefaultCatalog()
			strongest := a.cfg.Strongest()

			kinds := provider.Kinds()
			if a.providerFlag != "" {
				kind, err := a.cfg.Kind()
				if err != nil {
					return err
				}
				kinds = []provider.Kind{kind}
			}

			if asJSON {
				var rows []modelRow
				for _, k := range kinds {
					for _, m := range catalog.Models(k) {
						rows = append(rows, modelRow{ModelInfo: m, Strongest: strongest[k] == m.ID})
					}
				}
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			for _, k := range kinds {
				fmt.Fprintln(a.stdout, SectionStyle.Render(fmt.Sprintf("%s (%s)", k.DisplayName(), k)))
				for _, m := range catalog.Models(k) {
					var tags string
					if m.Default {
						tags += " default"
					}
					if strongest[k] == m.ID {
						tags += " deep-research"
					}
					fmt.Fprintf(a.stdout, "  %s %s %s %s%s\n", m.TierIcon(),
						util.PadRight(m.ID, 32), util.PadRight(m.Tier, 9),
						DimStyle.Render(m.Description), HighlightTag(tags))
				}
			}
			fmt.Fprintln(a.stdout)
			fmt.Fprintln(a.stdout, DimStyle.Render("Select with --provider/--model or /provider and /model in chat."))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// HighlightTag renders model tags such as "default".
func HighlightTag(tags string) string {
	if tags == "" {
		return ""
	}
	return SuccessStyle.Render(tags)
}
