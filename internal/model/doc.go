// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Message: one immutable turn with role, content, timestamp and, for
//     assistant replies, the provider and model that produced it
//   - Role: user or assistant
//
// History slices are plain []Message values. Window trims a history to the
// most recent N turns before it is sent upstream:
//
//	ctx := model.Window(history, model.DefaultHistoryWindow)
package model
