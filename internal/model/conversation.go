// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"polychat/internal/util"
)

// TitleMaxRunes is the character budget for a derived conversation title.
const TitleMaxRunes = 50

// PlaceholderTitle is used when a conversation has no user message yet.
const PlaceholderTitle = "New conversation"

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// State tracks where a conversation stands relative to durable storage.
//
// A conversation moves New -> Persisted, or New -> Ephemeral -> Persisted.
// The transition is one-directional: once a store-issued id is attached the
// conversation never reverts to Ephemeral or New, regardless of later write
// failures.
type State int

const (
	// StateNew means no identifier has been assigned at all.
	StateNew State = iota

	// StateEphemeral means a locally generated id exists but no durable
	// record does. The ephemeral id is never used as a store lookup key.
	StateEphemeral

	// StatePersisted means the store has issued an id; that id is the only
	// identifier used for this conversation from then on.
	StatePersisted
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateEphemeral:
		return "ephemeral"
	case StatePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat conversation with its id-regime metadata.
//
// Key is a stable in-memory handle generated at construction; it never
// changes, so in-flight work (provider replies, pending writes) can be keyed
// by it while StoreID is swapped on promotion. The message slice is the
// source of truth for rendering regardless of persistence state.
//
// A Conversation is shared between the interactive goroutine appending
// messages and the autosave goroutine persisting them; the internal mutex
// keeps the message list, dirty flag and state consistent across the two.
type Conversation struct {
	// Key is the stable local handle. Not a storage identifier.
	Key string `json:"key"`

	// StoreID is the durable-store identifier, empty until promotion. For
	// StateEphemeral it holds the locally generated placeholder id.
	StoreID string `json:"store_id,omitempty"`

	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	mu    sync.Mutex
	state State
	dirty bool
}

// NewConversation creates an empty conversation in StateNew.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		Key:       uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		state:     StateNew,
	}
}

// State returns the current persistence state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dirty reports whether there are messages not yet written to the store.
func (c *Conversation) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message and marks the conversation dirty. The message list
// is append-only; callers never reorder or edit in place.
func (c *Conversation) Append(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.dirty = true
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// FirstUserMessage returns the earliest user message, or nil.
func (c *Conversation) FirstUserMessage() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstUserLocked()
}

func (c *Conversation) firstUserLocked() *Message {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return c.MessageCount() == 0
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// DeriveTitle computes the title from the first user message, truncated to
// TitleMaxRunes. Recomputed on every persistence call so the stored title
// always follows the opening message. Falls back to PlaceholderTitle when no
// user message exists yet.
func (c *Conversation) DeriveTitle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deriveTitleLocked()
}

func (c *Conversation) deriveTitleLocked() string {
	first := c.firstUserLocked()
	if first == nil || first.Content == "" {
		return PlaceholderTitle
	}
	return util.TruncateRunes(util.CollapseWhitespace(first.Content), TitleMaxRunes)
}

// Snapshot captures the derived title and a copy of the message list for a
// store write, along with the message count the copy reflects. Hand the
// count back to MarkSavedUpTo after the write: a message appended while the
// write was in flight is not in the snapshot and must keep the conversation
// dirty.
func (c *Conversation) Snapshot() (title string, messages []*Message, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]*Message, len(c.Messages))
	copy(msgs, c.Messages)
	return c.deriveTitleLocked(), msgs, len(msgs)
}

// =============================================================================
// ID-REGIME TRANSITIONS
// =============================================================================

// Promote attaches a store-issued id and moves the conversation to
// StatePersisted. The message slice is untouched: the id is metadata on the
// same list, swapped atomically. Promoting an already-persisted conversation
// is a no-op so a duplicate create response cannot re-key the record.
func (c *Conversation) Promote(storeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePersisted {
		return
	}
	c.StoreID = storeID
	c.state = StatePersisted
}

// Demote assigns a locally generated placeholder id after a failed create so
// no work is lost while the conversation waits for a later promotion
// attempt. Calling Demote on a persisted conversation is ignored: the state
// machine is monotone.
func (c *Conversation) Demote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateNew {
		return
	}
	c.StoreID = "local_" + uuid.New().String()
	c.state = StateEphemeral
}

// MarkSaved clears the dirty flag after a store write that is known to
// cover the whole message list, such as loading from the store.
func (c *Conversation) MarkSaved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false
	c.Title = c.deriveTitleLocked()
}

// MarkSavedUpTo clears the dirty flag only when no message arrived since
// the Snapshot that produced count. Otherwise the conversation stays dirty
// so the next save picks up the newer messages.
func (c *Conversation) MarkSavedUpTo(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Messages) == count {
		c.dirty = false
	}
	c.Title = c.deriveTitleLocked()
}

// =============================================================================
// MODEL SELECTION
// =============================================================================

// LocalProvider is the provider name that needs no credential.
const LocalProvider = "ollama"

// ModelSelection names the backend and model for the next exchange.
type ModelSelection struct {
	Provider  string `json:"provider"`
	ModelName string `json:"model_name"`
}

// IsLocal reports whether the selection targets the local backend.
func (s ModelSelection) IsLocal() bool {
	return s.Provider == LocalProvider
}
