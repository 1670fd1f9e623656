// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/obsidian-assistant/internal/config"
	"github.com/jeranaias/obsidian-assistant/internal/failure"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				fmt.Fprintln(a.stdout, a.cfg.String())
				return nil
			}
			a.printConfig()
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print as JSON with keys redacted")

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.resolvedConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return failure.Newf(failure.KindInvalidInput, "config.init",
					"%s already exists; use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return failure.Wrap(failure.KindConfigError, "config.init", "cannot stat config file", err)
			}
			if err := config.SaveTo(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.stdout, a.resolvedConfigPath())
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting, e.g. session.history_window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return failure.Wrap(failure.KindInvalidInput, "config.get", "unknown key", err)
			}
			fmt.Fprintln(a.stdout, maskIfSecret(args[0], fmt.Sprint(v)))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting and save the file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setConfigValue(args[0], args[1])
		},
	}

	cmd.AddCommand(show, initCmd, path, get, set)
	return cmd
}

// setConfigValue edits the file on disk, not the effective config, so
// environment overrides are never persisted.
func (a *app) setConfigValue(key, value string) error {
	const op = "config.set"
	path := a.resolvedConfigPath()

	onDisk, err := config.LoadFileOnly(path)
	if err != nil {
		return err
	}
	if err := onDisk.Set(key, value); err != nil {
		return failure.Wrap(failure.KindInvalidInput, op, "cannot set "+key, err)
	}
	if err := onDisk.Validate(); err != nil {
		return failure.Wrap(failure.KindConfigError, op, "invalid value", err)
	}
	if err := config.SaveTo(onDisk, path); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, maskIfSecret(key, value))
	return nil
}

func (a *app) printConfig() {
	cfg := a.cfg
	fmt.Fprintln(a.stdout, TitleStyle.Render("Obsidian Assistant Configuration"))
	fmt.Fprintln(a.stdout, RenderSeparator(41))

	section := ""
	for _, key := range config.Keys() {
		sec := key[:strings.Index(key, ".")]
		if sec != section {
			section = sec
			fmt.Fprintln(a.stdout, SectionStyle.Render("["+sec+"]"))
		}
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Fprintf(a.stdout, "  %s%s\n", RenderLabel(key[len(sec)+1:]+":", 24),
			ValueStyle.Render(maskIfSecret(key, fmt.Sprint(v))))
	}
	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "Config file: %s\n", DimStyle.Render(a.resolvedConfigPath()))
}

// =============================================================================
// HELPERS
// =============================================================================

// maskAPIKey shows a short SHA-256 fingerprint instead of any key prefix.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("sha256:%x...", hash[:4])
}

func maskIfSecret(key, value string) string {
	lower := strings.ToLower(key)
	for _, s := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(lower, s) {
			return maskAPIKey(value)
		}
	}
	return value
}
