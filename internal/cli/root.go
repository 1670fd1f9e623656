// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the obsidian-assistant command line: the interactive
// chat, one-shot questions, the local HTTP server and config management.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/obsidian-assistant/internal/config"
	"github.com/jeranaias/obsidian-assistant/internal/failure"
	"github.com/jeranaias/obsidian-assistant/internal/logging"
	"github.com/jeranaias/obsidian-assistant/internal/provider"
)

// logFileName is where commands that own the terminal send their logs.
const logFileName = "assistant.log"

// annotationLogToFile marks commands whose logs must not reach stderr.
const annotationLogToFile = "log-to-file"

// BuildInfo is stamped by main at link time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// app holds global flags and the state built by the root pre-run hook.
type app struct {
	build BuildInfo

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// Global flags
	configPath   string
	verbose      bool
	providerFlag string
	modelFlag    string
	noColor      bool

	cfg    *config.Config
	logger *zap.Logger
}

func newApp(build BuildInfo) *app {
	return &app{
		build:  build,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: zap.NewNop(),
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(build BuildInfo) int {
	return newApp(build).run(context.Background(), os.Args[1:])
}

func (a *app) run(ctx context.Context, args []string) int {
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(a.stderr, err)
		return ExitCode(err)
	}
	return ExitSuccess
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "obsidian-assistant",
		Short: "Chat assistant for Obsidian, Dataview and Templater",
		Long: `obsidian-assistant answers questions about Obsidian and its plugins using
OpenAI or Hugging Face models. Conversations are grouped into projects, each
with its own history. Deep research mode switches to the strongest model of
the selected provider and asks for a structured, thorough answer.

Run without arguments to start the interactive chat.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		Annotations: map[string]string{annotationLogToFile: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), false)
		},
	}

	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(cmd.Name(), err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file path (default ~/.obsidian-assistant/config.toml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.StringVarP(&a.providerFlag, "provider", "p", "", "provider for this run: openai or huggingface")
	flags.StringVarP(&a.modelFlag, "model", "m", "", "model for this run")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newChatCommand(a),
		newAskCommand(a),
		newModelsCommand(a),
		newKBCommand(a),
		newConfigCommand(a),
		newServeCommand(a),
		newVersionCommand(a),
	)
	return root
}

// setup loads config, applies per-run flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.noColor {
		ForceColorsEnabled(false)
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	opts := logging.Options{
		Level:   cfg.Logging.Level,
		Verbose: a.verbose,
		JSON:    cfg.Logging.JSON,
	}
	if logsToFile(cmd) {
		dir, err := config.Dir()
		if err != nil {
			return failure.Wrap(failure.KindConfigError, "cli.setup", "no config directory", err)
		}
		opts.File = filepath.Join(dir, logFileName)
	}
	logger, err := logging.New(opts)
	if err != nil {
		return failure.Wrap(failure.KindConfigError, "cli.setup", "logger", err)
	}
	a.logger = logger
	a.logger.Debug("config loaded",
		zap.String("provider", cfg.Provider.Kind),
		zap.String("path", a.resolvedConfigPath()))
	return nil
}

// loadConfig reads the config file and applies --provider and --model.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromPath(a.resolvedConfigPath())
	if err != nil {
		return nil, err
	}
	if a.providerFlag != "" {
		kind, err := provider.ParseKind(a.providerFlag)
		if err != nil {
			return nil, err
		}
		cfg.Provider.Kind = string(kind)
	}
	if a.modelFlag != "" {
		kind, err := cfg.Kind()
		if err != nil {
			return nil, err
		}
		cfg.SetModel(kind, a.modelFlag)
	}
	return cfg, nil
}

// resolvedConfigPath is --config or the default path.
func (a *app) resolvedConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	path, err := config.Path()
	if err != nil {
		return "config.toml"
	}
	return path
}

func logsToFile(cmd *cobra.Command) bool {
	return cmd.Annotations[annotationLogToFile] == "true"
}
