// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			b := a.build
			if b.Version == "" {
				b.Version = "dev"
			}
			fmt.Fprintf(a.stdout, "obsidian-assistant %s\n", b.Version)
			if b.GitCommit != "" {
				fmt.Fprintf(a.stdout, "  commit: %s\n", b.GitCommit)
			}
			if b.BuildDate != "" {
				fmt.Fprintf(a.stdout, "  built:  %s\n", b.BuildDate)
			}
			fmt.Fprintf(a.stdout, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
