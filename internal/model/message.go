// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"

	"polychat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// Attachment is a file referenced by a single message. Exactly one of
// InlineData or RemoteRef is set. Attachments are owned by the message that
// carries them and are never shared across messages.
type Attachment struct {
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
	InlineData []byte `json:"inline_data,omitempty"`
	RemoteRef  string `json:"remote_ref,omitempty"`
}

// IsInline reports whether the attachment carries its data in memory.
func (a *Attachment) IsInline() bool {
	return len(a.InlineData) > 0
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation. Messages are
// immutable once appended: the conversation's message sequence only ever
// grows, in append order.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Reasoning holds the model's rationale extracted from the raw reply.
	// Only set on assistant messages.
	Reasoning string `json:"reasoning,omitempty"`

	// Attachments carried by this message (user messages only).
	Attachments []Attachment `json:"attachments,omitempty"`

	// Provenance (assistant messages only).
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// NewUserMessage creates a user message with a generated ID.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message with a generated ID.
func NewAssistantMessage(content, reasoning, provider, model string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   content,
		Reasoning: reasoning,
		Provider:  provider,
		Model:     model,
		Timestamp: time.Now(),
	}
}

// Preview returns the first maxRunes characters of the content with
// newlines collapsed, suitable for one-line display.
func (m *Message) Preview(maxRunes int) string {
	return util.TruncateRunes(util.CollapseWhitespace(m.Content), maxRunes)
}
