// obsidian-assistant - A terminal and HTTP chat assistant for Obsidian users.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/obsidian-assistant/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = ""
	BuildDate = ""
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}))
}
