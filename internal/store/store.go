// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides durable conversation storage.
package store

import (
	"context"
	"errors"
	"time"

	"polychat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a conversation id has no record.
	ErrNotFound = errors.New("conversation not found")
)

// =============================================================================
// STORE CONTRACT
// =============================================================================

// Record is a stored conversation as the store returns it.
type Record struct {
	ID        string
	OwnerID   string
	Title     string
	Messages  []*model.Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the durable-storage collaborator. Create and Update are written
// to be safe to retry on transient failure; the caller owns serialization
// of writes per conversation id.
type Store interface {
	// Create inserts a new record and returns the store-issued id.
	Create(ctx context.Context, ownerID, title string, messages []*model.Message) (string, error)

	// Update rewrites the record with the given id.
	Update(ctx context.Context, id, title string, messages []*model.Message) error

	// Query returns all records belonging to an owner, most recent first.
	Query(ctx context.Context, ownerID string) ([]Record, error)

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying resources.
	Close() error
}
