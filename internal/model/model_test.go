// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello")

	if msg.ID == "" {
		t.Error("expected generated ID")
	}
	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want %q", msg.Role, RoleUser)
	}
	if msg.Content != "hello" {
		t.Errorf("Content = %q, want %q", msg.Content, "hello")
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestNewAssistantMessage(t *testing.T) {
	msg := NewAssistantMessage("Hi there!", "thinking", "ollama", "m1")

	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want %q", msg.Role, RoleAssistant)
	}
	if msg.Reasoning != "thinking" {
		t.Errorf("Reasoning = %q, want %q", msg.Reasoning, "thinking")
	}
	if msg.Provider != "ollama" || msg.Model != "m1" {
		t.Errorf("provenance = %q/%q, want ollama/m1", msg.Provider, msg.Model)
	}
}

func TestMessagePreview(t *testing.T) {
	msg := NewUserMessage("first line\nsecond line")
	got := msg.Preview(80)
	if strings.Contains(got, "\n") {
		t.Errorf("preview should collapse newlines, got %q", got)
	}

	long := NewUserMessage(strings.Repeat("x", 200))
	if got := long.Preview(20); len([]rune(got)) > 20 {
		t.Errorf("preview exceeds budget: %q", got)
	}
}

func TestRoleDisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("user display name = %q", RoleUser.DisplayName())
	}
	if RoleAssistant.DisplayName() != "Assistant" {
		t.Errorf("assistant display name = %q", RoleAssistant.DisplayName())
	}
}

// =============================================================================
// CONVERSATION STATE TESTS
// =============================================================================

func TestNewConversationState(t *testing.T) {
	conv := NewConversation()

	if conv.State() != StateNew {
		t.Errorf("State = %v, want StateNew", conv.State())
	}
	if conv.Key == "" {
		t.Error("expected stable key")
	}
	if conv.StoreID != "" {
		t.Errorf("StoreID = %q, want empty", conv.StoreID)
	}
	if conv.Dirty() {
		t.Error("fresh conversation should not be dirty")
	}
}

func TestConversationAppendMarksDirty(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("hello"))

	if !conv.Dirty() {
		t.Error("append should mark dirty")
	}
	if conv.MessageCount() != 1 {
		t.Errorf("MessageCount = %d, want 1", conv.MessageCount())
	}
}

func TestPromoteFromNew(t *testing.T) {
	conv := NewConversation()
	conv.Promote("conv_abc123")

	if conv.State() != StatePersisted {
		t.Errorf("State = %v, want StatePersisted", conv.State())
	}
	if conv.StoreID != "conv_abc123" {
		t.Errorf("StoreID = %q, want conv_abc123", conv.StoreID)
	}
}

func TestDemoteThenPromote(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("hello"))
	msgs := conv.Messages

	conv.Demote()
	if conv.State() != StateEphemeral {
		t.Errorf("State = %v, want StateEphemeral", conv.State())
	}
	if !strings.HasPrefix(conv.StoreID, "local_") {
		t.Errorf("ephemeral id = %q, want local_ prefix", conv.StoreID)
	}

	conv.Promote("conv_real")
	if conv.State() != StatePersisted {
		t.Errorf("State = %v, want StatePersisted", conv.State())
	}
	if conv.StoreID != "conv_real" {
		t.Errorf("StoreID = %q, local id should be discarded", conv.StoreID)
	}

	// Promotion is an id swap, never a message move.
	if len(conv.Messages) != len(msgs) || &conv.Messages[0] != &msgs[0] {
		t.Error("promotion must not touch the message slice")
	}
}

func TestStateMonotonicity(t *testing.T) {
	conv := NewConversation()
	conv.Promote("conv_abc")

	// Neither a demotion nor a second promotion may move it backwards.
	conv.Demote()
	if conv.State() != StatePersisted {
		t.Error("persisted conversation must never demote")
	}
	conv.Promote("conv_other")
	if conv.StoreID != "conv_abc" {
		t.Errorf("StoreID = %q, re-promotion must not re-key", conv.StoreID)
	}
}

// =============================================================================
// TITLE DERIVATION TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	conv := NewConversation()

	if got := conv.DeriveTitle(); got != PlaceholderTitle {
		t.Errorf("empty conversation title = %q, want %q", got, PlaceholderTitle)
	}

	conv.Append(NewUserMessage("Hello"))
	if got := conv.DeriveTitle(); got != "Hello" {
		t.Errorf("title = %q, want %q", got, "Hello")
	}

	// Always the FIRST user message, even after more turns.
	conv.Append(NewAssistantMessage("Hi there!", "", "ollama", "m1"))
	conv.Append(NewUserMessage("Something else entirely"))
	if got := conv.DeriveTitle(); got != "Hello" {
		t.Errorf("title = %q, want first user message", got)
	}
}

func TestDeriveTitleTruncation(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage(strings.Repeat("a", 200)))

	got := conv.DeriveTitle()
	if len([]rune(got)) > TitleMaxRunes {
		t.Errorf("title length %d exceeds budget %d", len([]rune(got)), TitleMaxRunes)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated title should end with ellipsis: %q", got)
	}
}

func TestDeriveTitleCollapsesNewlines(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("line one\nline two"))

	if got := conv.DeriveTitle(); strings.Contains(got, "\n") {
		t.Errorf("title should not contain newlines: %q", got)
	}
}

// =============================================================================
// SAVE WATERMARK TESTS
// =============================================================================

func TestSnapshotIsolatedFromLaterAppends(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("Hello"))

	title, messages, count := conv.Snapshot()
	conv.Append(NewUserMessage("late arrival"))

	if title != "Hello" {
		t.Errorf("snapshot title = %q, want Hello", title)
	}
	if len(messages) != 1 || count != 1 {
		t.Errorf("snapshot holds %d messages (count %d), want 1", len(messages), count)
	}
}

func TestMarkSavedUpToKeepsLaterMessagesDirty(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("Hello"))

	_, _, count := conv.Snapshot()
	conv.Append(NewUserMessage("missed the write"))

	conv.MarkSavedUpTo(count)
	if !conv.Dirty() {
		t.Error("message appended after the snapshot must keep the conversation dirty")
	}

	_, _, count = conv.Snapshot()
	conv.MarkSavedUpTo(count)
	if conv.Dirty() {
		t.Error("conversation should be clean once the watermark covers every message")
	}
}

// =============================================================================
// MODEL SELECTION TESTS
// =============================================================================

func TestModelSelectionIsLocal(t *testing.T) {
	if !(ModelSelection{Provider: "ollama", ModelName: "m1"}).IsLocal() {
		t.Error("ollama should be local")
	}
	if (ModelSelection{Provider: "openai", ModelName: "gpt-4o"}).IsLocal() {
		t.Error("openai should not be local")
	}
}
