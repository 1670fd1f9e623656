// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Exit codes and error display for CLI commands.
//
// Commands always return errors; Execute decides how to print them and
// which exit code to use.

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess = 0
	// ExitGeneralError is used for errors without a failure kind.
	ExitGeneralError = 1
	// ExitUsageError indicates invalid arguments or flags.
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	// 6 and 8 are unused.
	ExitNotFoundError      = 7
	ExitQuotaError         = 9
	ExitUpstreamError      = 10
	ExitNoActiveProjectErr = 11
)

var exitCodes = map[failure.Kind]int{
	failure.KindInvalidInput:      ExitUsageError,
	failure.KindConfigError:       ExitConfigError,
	failure.KindAuthFailure:       ExitAuthError,
	failure.KindNetworkFailure:    ExitNetworkError,
	failure.KindNotFound:          ExitNotFoundError,
	failure.KindQuotaExceeded:     ExitQuotaError,
	failure.KindUpstreamMalformed: ExitUpstreamError,
	failure.KindNoActiveProject:   ExitNoActiveProjectErr,
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return ExitGeneralError
	}
	if code, ok := exitCodes[fe.Kind]; ok {
		return code
	}
	return ExitGeneralError
}

// =============================================================================
// DISPLAY
// =============================================================================

// hints suggest a next step for failures a user can fix themselves.
var hints = map[failure.Kind]string{
	failure.KindAuthFailure:     "Check OPENAI_API_KEY or HF_API_KEY, or the keys in the config file.",
	failure.KindNoActiveProject: "Create a project with /project new <name>.",
	failure.KindQuotaExceeded:   "The provider refused the request for quota or rate reasons; try again later.",
}

// printError writes a styled error line, plus a hint when one applies.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), failure.Describe(err))
	if hint, ok := hints[failure.KindOf(err)]; ok {
		fmt.Fprintln(w, DimStyle.Render(hint))
	}
}

// usageError wraps a flag or argument problem as InvalidInput.
func usageError(op string, err error) error {
	return failure.Wrap(failure.KindInvalidInput, op, "invalid usage", err)
}
