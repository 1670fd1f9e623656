// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small string and file helpers.
//
// String helpers measure width with go-runewidth so previews line up in the
// terminal. AtomicWriteFile is used by the config layer when writing
// config.toml.
package util
