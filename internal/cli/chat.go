// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL with slash commands.
//
// Input comes from liner, which provides line editing and history across
// runs. Each message is sent through a session controller; Ctrl+C while a
// request is in flight abandons that request only.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/obsidian-assistant/internal/config"
	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/knowledge"
	"github.com/jeranaias/obsidian-assistant/internal/model"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
	"github.com/jeranaias/obsidian-assistant/internal/session"
	"github.com/jeranaias/obsidian-assistant/internal/store"
	"github.com/jeranaias/obsidian-assistant/internal/util"
)

// historyFileName stores REPL input history in the config directory.
const historyFileName = "chat_history"

func newChatCommand(a *app) *cobra.Command {
	var deep bool
	cmd := &cobra.Command{
		Use:         "chat",
		Short:       "Start an interactive chat (default)",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLogToFile: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), deep)
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "start in deep research mode")
	return cmd
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader wraps liner with a persistent history file.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeSlash)

	r := &lineReader{line: line}
	if dir, err := config.Dir(); err == nil {
		r.historyFile = filepath.Join(dir, historyFileName)
		if f, err := os.Open(r.historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *lineReader) readLine(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// close saves history with owner-only permissions and restores the terminal.
func (r *lineReader) close() {
	defer r.line.Close()
	if r.historyFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = r.line.WriteHistory(f)
}

var slashCommands = []string{
	"/help", "/project new ", "/project list", "/project switch ", "/project rename ",
	"/project delete ", "/project clear", "/deep on", "/deep off", "/provider ",
	"/model ", "/models", "/history", "/export md", "/export json", "/kb ",
	"/status", "/quit",
}

func completeSlash(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// REPL
// =============================================================================

func (a *app) runChat(ctx context.Context, deep bool) error {
	if err := a.cfg.RequireCredentials(); err != nil {
		return err
	}
	parts, err := a.components()
	if err != nil {
		return err
	}
	ctrl := parts.newController()
	if deep {
		ctrl.SetResearchMode(true)
	}

	chat := newChatSession(ctrl, parts.kb, a.stdout)
	chat.hasKey = func(k provider.Kind) bool { return a.cfg.APIKey(k) != "" }
	if IsStdoutTTY() && ColorsEnabled() {
		chat.render = newMarkdownRenderer(renderWidth())
	}

	chat.printBanner()

	reader := newLineReader()
	defer reader.close()

	for {
		input, err := reader.readLine(chat.prompt())
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin all end the chat.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				a.logger.Warn("input failed", zap.Error(err))
			}
			fmt.Fprintln(a.stdout)
			return nil
		}

		msgCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		quit, err := chat.handleLine(msgCtx, input)
		stop()
		if err != nil {
			printError(a.stderr, err)
		}
		if quit {
			return nil
		}
	}
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession dispatches REPL lines. It owns no terminal state, so tests
// drive it directly.
type chatSession struct {
	ctrl   *session.Controller
	kb     *knowledge.Base
	out    io.Writer
	render func(string) string

	// hasKey reports whether a provider has credentials. Nil skips the check.
	hasKey func(provider.Kind) bool
}

func newChatSession(ctrl *session.Controller, kb *knowledge.Base, out io.Writer) *chatSession {
	return &chatSession{
		ctrl:   ctrl,
		kb:     kb,
		out:    out,
		render: plainRender,
	}
}

func (c *chatSession) printBanner() {
	pc := c.ctrl.Provider()
	fmt.Fprintln(c.out, TitleStyle.Render("Obsidian Assistant"))
	fmt.Fprintln(c.out, DimStyle.Render(fmt.Sprintf("%s / %s. Type /help for commands.",
		pc.Kind.DisplayName(), pc.Model)))
	if c.ctrl.Store().Count() == 0 {
		fmt.Fprintln(c.out, DimStyle.Render("Start with /project new <name>."))
	}
	fmt.Fprintln(c.out)
}

// prompt shows the active project and a marker in deep research mode.
func (c *chatSession) prompt() string {
	name := "no project"
	if id, ok := c.ctrl.Store().Active(); ok {
		if sum, err := c.ctrl.Store().Get(id); err == nil {
			name = sum.Name
		}
	}
	p := name
	if c.ctrl.ResearchMode() {
		p += " [deep]"
	}
	return PromptStyle.Render(p + "> ")
}

// handleLine processes one line of input and reports whether to quit.
func (c *chatSession) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case strings.HasPrefix(line, "/"):
		return c.handleSlash(line)
	case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
		return true, nil
	}

	reply, err := c.ctrl.HandleUserMessage(ctx, line)
	if err != nil {
		return false, err
	}
	c.printReply(reply)
	return false, nil
}

func (c *chatSession) printReply(reply model.Message) {
	fmt.Fprintln(c.out)
	fmt.Fprint(c.out, c.render(reply.Content))
	fmt.Fprintln(c.out, DimStyle.Render(reply.Attribution()))
	fmt.Fprintln(c.out)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (c *chatSession) handleSlash(line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch name {
	case "/help", "/?":
		c.printHelp()
	case "/quit", "/exit", "/q":
		return true, nil
	case "/project", "/p":
		return false, c.handleProject(args, rest)
	case "/deep":
		return false, c.handleDeep(args)
	case "/provider":
		return false, c.handleProvider(args)
	case "/model":
		return false, c.handleModel(args)
	case "/models":
		c.printModels()
	case "/history":
		return false, c.printHistory()
	case "/export":
		return false, c.handleExport(args)
	case "/kb":
		c.handleKB(rest)
	case "/status":
		c.printStatus()
	default:
		return false, failure.Newf(failure.KindInvalidInput, "chat", "unknown command %s; type /help", name)
	}
	return false, nil
}

func (c *chatSession) printHelp() {
	rows := [][2]string{
		{"/project new <name>", "create a project and switch to it"},
		{"/project list", "list projects (* marks the active one)"},
		{"/project switch <name|id>", "switch the active project"},
		{"/project rename <name>", "rename the active project"},
		{"/project delete <name|id>", "delete a project and its history"},
		{"/project clear", "clear the active project's history"},
		{"/deep [on|off]", "toggle deep research mode"},
		{"/provider [openai|huggingface]", "show or switch provider"},
		{"/model [id]", "show or switch model"},
		{"/models", "list models for the current provider"},
		{"/history", "show the active project's messages"},
		{"/export md|json", "print the active project"},
		{"/kb [term]", "search the built-in Obsidian notes"},
		{"/status", "show current settings"},
		{"/quit", "leave the chat"},
	}
	fmt.Fprintln(c.out, SectionStyle.Render("Commands"))
	for _, r := range rows {
		fmt.Fprintf(c.out, "  %s %s\n", RenderLabel(r[0], 32), r[1])
	}
}

func (c *chatSession) handleProject(args []string, rest string) error {
	const op = "chat.project"
	st := c.ctrl.Store()
	if len(args) == 0 {
		fmt.Fprint(c.out, store.FormatSummaries(st.Summaries()))
		fmt.Fprintln(c.out)
		return nil
	}
	arg := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))

	switch strings.ToLower(args[0]) {
	case "new", "create":
		id, err := st.CreateProject(arg)
		if err != nil {
			return err
		}
		if err := st.Activate(id); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s Created and switched to %q (%s)\n", SuccessStyle.Render("[OK]"), strings.TrimSpace(arg), id.Short())

	case "list", "ls":
		fmt.Fprint(c.out, store.FormatSummaries(st.Summaries()))
		fmt.Fprintln(c.out)

	case "switch", "use":
		id, err := st.Resolve(arg)
		if err != nil {
			return err
		}
		if err := st.Activate(id); err != nil {
			return err
		}
		sum, _ := st.Get(id)
		fmt.Fprintf(c.out, "%s Switched to %q (%d messages)\n", SuccessStyle.Render("[OK]"), sum.Name, sum.MessageCount)

	case "rename":
		id, err := c.activeProject(op)
		if err != nil {
			return err
		}
		if err := st.Rename(id, arg); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s Renamed to %q\n", SuccessStyle.Render("[OK]"), strings.TrimSpace(arg))

	case "delete", "rm":
		id, err := st.Resolve(arg)
		if err != nil {
			return err
		}
		sum, _ := st.Get(id)
		if err := st.Delete(id); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s Deleted %q\n", SuccessStyle.Render("[OK]"), sum.Name)
		if active, ok := st.Active(); ok {
			now, _ := st.Get(active)
			fmt.Fprintln(c.out, DimStyle.Render("Active project: "+now.Name))
		}

	case "clear":
		id, err := c.activeProject(op)
		if err != nil {
			return err
		}
		if err := st.Clear(id); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s History cleared\n", SuccessStyle.Render("[OK]"))

	default:
		return failure.Newf(failure.KindInvalidInput, op, "unknown subcommand %q; try /help", args[0])
	}
	return nil
}

func (c *chatSession) activeProject(op string) (store.ProjectID, error) {
	id, ok := c.ctrl.Store().Active()
	if !ok {
		return "", failure.New(failure.KindNoActiveProject, op, "no active project")
	}
	return id, nil
}

func (c *chatSession) handleDeep(args []string) error {
	on := !c.ctrl.ResearchMode()
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			on = true
		case "off", "false", "0":
			on = false
		default:
			return failure.Newf(failure.KindInvalidInput, "chat.deep", "expected on or off, got %q", args[0])
		}
	}
	c.ctrl.SetResearchMode(on)
	if on {
		fmt.Fprintln(c.out, DeepStyle.Render("Deep research mode on")+
			DimStyle.Render(" (strongest model, longer structured answers)"))
		return nil
	}
	fmt.Fprintln(c.out, "Deep research mode off")
	return nil
}

func (c *chatSession) handleProvider(args []string) error {
	if len(args) == 0 {
		pc := c.ctrl.Provider()
		fmt.Fprintf(c.out, "Provider: %s (%s)\n", pc.Kind.DisplayName(), pc.Kind.Class())
		return nil
	}
	kind, err := provider.ParseKind(args[0])
	if err != nil {
		return err
	}
	if err := c.ctrl.UseProvider(kind); err != nil {
		return err
	}
	pc := c.ctrl.Provider()
	fmt.Fprintf(c.out, "%s Provider %s, model %s\n", SuccessStyle.Render("[OK]"), pc.Kind.DisplayName(), pc.Model)
	if c.hasKey != nil && !c.hasKey(kind) {
		fmt.Fprintln(c.out, WarningStyle.Render(fmt.Sprintf(
			"No %s API key is configured; messages will fail until one is set.", kind.DisplayName())))
	}
	return nil
}

func (c *chatSession) handleModel(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "Model: %s\n", c.ctrl.Provider().Model)
		return nil
	}
	if err := c.ctrl.SetModel(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s Model %s\n", SuccessStyle.Render("[OK]"), args[0])
	return nil
}

func (c *chatSession) printModels() {
	pc := c.ctrl.Provider()
	catalog := c.ctrl.Catalog()
	fmt.Fprintln(c.out, SectionStyle.Render(pc.Kind.DisplayName()+" models"))
	for _, m := range catalog.Models(pc.Kind) {
		marker := "  "
		if m.ID == pc.Model {
			marker = "* "
		}
		fmt.Fprintf(c.out, "%s%s %s %s\n", marker, m.TierIcon(),
			util.PadRight(m.ID, 32), DimStyle.Render(m.Description))
	}
}

func (c *chatSession) printHistory() error {
	id, err := c.activeProject("chat.history")
	if err != nil {
		return err
	}
	hist, err := c.ctrl.Store().History(id)
	if err != nil {
		return err
	}
	if len(hist) == 0 {
		fmt.Fprintln(c.out, DimStyle.Render("No messages yet."))
		return nil
	}
	width := GetTerminalWidth() - 24
	for _, m := range hist {
		who := util.PadRight(m.Role.DisplayName(), 10)
		fmt.Fprintf(c.out, "%s %s %s\n", DimStyle.Render(m.Timestamp.Format("15:04")), who, m.Preview(width))
	}
	return nil
}

func (c *chatSession) handleExport(args []string) error {
	id, err := c.activeProject("chat.export")
	if err != nil {
		return err
	}
	name := "md"
	if len(args) > 0 {
		name = args[0]
	}
	format, err := store.ParseFormat(name)
	if err != nil {
		return err
	}
	return c.ctrl.Store().Export(c.out, id, format)
}

func (c *chatSession) handleKB(term string) {
	if term == "" {
		fmt.Fprintf(c.out, "Categories: %s\n", strings.Join(c.kb.Categories(), ", "))
		return
	}
	printHits(c.out, c.kb.Search(term), term)
}

func (c *chatSession) printStatus() {
	printStatus(c.out, c.ctrl.Status())
}

// printStatus renders a controller snapshot.
func printStatus(w io.Writer, st session.Status) {
	project := "(none)"
	if st.ActiveProject != nil {
		project = fmt.Sprintf("%s (%d messages)", st.ActiveProject.Name, st.ActiveProject.MessageCount)
	}
	fmt.Fprintln(w, RenderField("Provider", st.Provider.Kind.DisplayName()))
	fmt.Fprintln(w, RenderField("Model", st.Provider.Model))
	fmt.Fprintln(w, RenderLabel("Deep research")+RenderOnOff(st.Deep))
	fmt.Fprintln(w, RenderLabel("Knowledge context")+RenderOnOff(st.Knowledge))
	fmt.Fprintln(w, RenderField("History window", fmt.Sprintf("%d messages", st.HistoryWindow)))
	fmt.Fprintln(w, RenderField("Projects", fmt.Sprintf("%d", st.Projects)))
	fmt.Fprintln(w, RenderField("Active project", project))
}
