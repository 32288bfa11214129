// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Conversation is in exactly one of three persistence states at any time:
// New (no id), Ephemeral (local placeholder id), or Persisted (store-issued
// id). Transitions only move forward; see conversation.go.
//
// Messages are append-only. An exchange appends the user message, then the
// assistant message; nothing is reordered or edited in place.
package model
