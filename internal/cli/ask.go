// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot questions and markdown rendering.

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/obsidian-assistant/internal/model"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// newMarkdownRenderer returns a glamour render function, or a plain
// passthrough when the renderer cannot be built.
func newMarkdownRenderer(width int) func(string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plainRender
	}
	return func(content string) string {
		out, err := r.Render(content)
		if err != nil {
			return plainRender(content)
		}
		return out
	}
}

func plainRender(content string) string {
	if strings.HasSuffix(content, "\n") {
		return content
	}
	return content + "\n"
}

// =============================================================================
// ASK COMMAND
// =============================================================================

type askOptions struct {
	deep    bool
	project string
	json    bool
}

// askResult is the --json output.
type askResult struct {
	Project string        `json:"project"`
	Deep    bool          `json:"deep"`
	Message model.Message `json:"message"`
}

func newAskCommand(a *app) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Example: `  obsidian-assistant ask "How do I list tasks with Dataview?"
  obsidian-assistant ask --deep "Compare Dataview and Templater for daily notes"
  obsidian-assistant -p huggingface ask "What is a backlink?"`,
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{annotationLogToFile: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.deep, "deep", "d", false, "use deep research mode")
	cmd.Flags().StringVar(&opts.project, "project", "ask", "project name for the conversation")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the reply as JSON")
	return cmd
}

func (a *app) runAsk(cmd *cobra.Command, question string, opts askOptions) error {
	if err := a.cfg.RequireCredentials(); err != nil {
		return err
	}
	parts, err := a.components()
	if err != nil {
		return err
	}
	ctrl := parts.newController()
	if opts.deep {
		ctrl.SetResearchMode(true)
	}

	id, err := ctrl.Store().CreateProject(opts.project)
	if err != nil {
		return err
	}
	if err := ctrl.Store().Activate(id); err != nil {
		return err
	}

	reply, err := ctrl.HandleUserMessage(cmd.Context(), question)
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(askResult{Project: opts.project, Deep: ctrl.ResearchMode(), Message: reply})
	}

	render := plainRender
	if IsStdoutTTY() && ColorsEnabled() {
		render = newMarkdownRenderer(renderWidth())
	}
	fmt.Fprint(a.stdout, render(reply.Content))
	return nil
}
