// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string

	// Verbose forces debug level regardless of Level.
	Verbose bool

	// JSON selects the JSON encoder; otherwise console output is used.
	JSON bool

	// Development enables caller-friendly output and DPanic panics.
	Development bool

	// File sends log output to a file instead of stderr. The interactive
	// chat uses this so log lines do not interleave with the conversation.
	File string
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Development {
		config = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	if !opts.JSON {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		config.OutputPaths = []string{opts.File}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Preview returns a loggable field for user text: its rune length plus a
// short single-line prefix. Full prompts are never logged.
func Preview(key, text string) zap.Field {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	short := string(runes)
	if len(runes) > 40 {
		short = string(runes[:40]) + "..."
	}
	return zap.Dict(key,
		zap.Int("runes", len([]rune(text))),
		zap.String("preview", short),
	)
}
