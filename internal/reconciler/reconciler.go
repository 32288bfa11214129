// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconciler keeps in-memory conversations and the durable store in
// agreement. All store writes for a conversation flow through here so that at
// most one write per conversation is in flight at any time.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"polychat/internal/model"
	"polychat/internal/store"
)

// DefaultAutosaveInterval is how often dirty conversations are persisted in
// the background when the caller does not configure an interval.
const DefaultAutosaveInterval = 30 * time.Second

// ErrStoreWrite wraps any persistence failure. The conversation's messages
// are never lost when this is returned; they stay in memory and the next save
// attempt retries the same write.
var ErrStoreWrite = errors.New("store write failed")

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler owns the persistence lifecycle of conversations. A conversation
// starts as a pure in-memory object; the first successful write promotes it
// to its store-issued id, and every later write is an update against that id.
// Writes are serialized per conversation by the stable Key, so concurrent
// completions, autosave ticks and flushes cannot race each other into the
// store.
type Reconciler struct {
	store   store.Store
	ownerID string

	mu       sync.Mutex
	tracked  map[string]*model.Conversation // by Key
	inFlight map[string]bool                // by Key

	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a reconciler persisting on behalf of ownerID. An interval of
// zero selects DefaultAutosaveInterval.
func New(st store.Store, ownerID string, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	return &Reconciler{
		store:    st,
		ownerID:  ownerID,
		tracked:  make(map[string]*model.Conversation),
		inFlight: make(map[string]bool),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the autosave goroutine. Safe to skip in tests that drive
// persistence explicitly.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.autosaveLoop()
}

// Stop halts autosave and flushes whatever is still dirty.
func (r *Reconciler) Stop(ctx context.Context) {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
	r.Flush(ctx)
}

// Track registers a conversation for autosave and flushing. Tracking is
// idempotent; the reconciler keys by the stable Key, not the store id.
func (r *Reconciler) Track(conv *model.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[conv.Key] = conv
}

// Untrack removes a conversation from autosave, for example after deletion.
func (r *Reconciler) Untrack(conv *model.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tracked, conv.Key)
}

// =============================================================================
// EXCHANGE LIFECYCLE
// =============================================================================

// StartExchange appends the user's message and returns the full message list
// for immediate display. No store call happens here; the exchange is
// persisted once the assistant's side arrives.
func (r *Reconciler) StartExchange(conv *model.Conversation, userMsg *model.Message) []*model.Message {
	conv.Append(userMsg)
	r.Track(conv)
	return conv.Messages
}

// CompleteExchange appends the assistant's message and persists the
// conversation. On a failed first write the conversation is demoted to an
// ephemeral local id and kept whole in memory; on a failed update the
// persisted state is kept and the write retried by a later save. Either way
// the returned error wraps ErrStoreWrite and the message list is intact.
func (r *Reconciler) CompleteExchange(ctx context.Context, conv *model.Conversation, assistantMsg *model.Message) error {
	conv.Append(assistantMsg)
	r.Track(conv)
	return r.Save(ctx, conv)
}

// Save persists a conversation through the per-conversation gate. If another
// write for the same conversation is already in flight, Save returns
// immediately without issuing a store call; the dirty flag stays set and the
// in-flight writer's follow-up (or the next autosave tick) picks the change
// up. Distinct conversations persist concurrently.
func (r *Reconciler) Save(ctx context.Context, conv *model.Conversation) error {
	if !r.acquire(conv.Key) {
		return nil
	}
	defer r.release(conv.Key)
	return r.persist(ctx, conv)
}

// Flush persists every tracked dirty conversation. Best effort: each failure
// is logged and the remaining conversations still get their attempt. Used
// before switching conversations and on shutdown.
func (r *Reconciler) Flush(ctx context.Context) {
	r.mu.Lock()
	convs := make([]*model.Conversation, 0, len(r.tracked))
	for _, conv := range r.tracked {
		convs = append(convs, conv)
	}
	r.mu.Unlock()

	for _, conv := range convs {
		if !conv.Dirty() {
			continue
		}
		if err := r.Save(ctx, conv); err != nil {
			log.Printf("flush: %v", err)
		}
	}
}

// Delete removes a conversation's durable record, if it has one, and stops
// tracking it.
func (r *Reconciler) Delete(ctx context.Context, conv *model.Conversation) error {
	r.Untrack(conv)
	if conv.State() != model.StatePersisted {
		return nil
	}
	if err := r.store.Delete(ctx, conv.StoreID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}

// Load rebuilds in-memory conversations from the owner's stored records,
// most recent first. Loaded conversations are already persisted and start
// clean.
func (r *Reconciler) Load(ctx context.Context) ([]*model.Conversation, error) {
	records, err := r.store.Query(ctx, r.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	convs := make([]*model.Conversation, 0, len(records))
	for _, rec := range records {
		conv := model.NewConversation()
		conv.Title = rec.Title
		conv.CreatedAt = rec.CreatedAt
		conv.UpdatedAt = rec.UpdatedAt
		conv.Messages = rec.Messages
		conv.Promote(rec.ID)
		conv.MarkSaved()
		r.Track(conv)
		convs = append(convs, conv)
	}
	return convs, nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persist issues the state-appropriate store call. Caller holds the
// per-conversation gate. The store write sees a snapshot of the message
// list; a message appended while the write is in flight keeps the
// conversation dirty so the next save carries it.
func (r *Reconciler) persist(ctx context.Context, conv *model.Conversation) error {
	title, messages, count := conv.Snapshot()

	switch conv.State() {
	case model.StatePersisted:
		if err := r.store.Update(ctx, conv.StoreID, title, messages); err != nil {
			log.Printf("update failed for %s: %v", conv.StoreID, err)
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
	default:
		id, err := r.store.Create(ctx, r.ownerID, title, messages)
		if err != nil {
			conv.Demote()
			log.Printf("create failed, conversation kept locally as %s: %v", conv.StoreID, err)
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		conv.Promote(id)
	}

	conv.MarkSavedUpTo(count)
	return nil
}

// acquire takes the write gate for a conversation key. Returns false when a
// write is already in flight for that key.
func (r *Reconciler) acquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[key] {
		return false
	}
	r.inFlight[key] = true
	return true
}

func (r *Reconciler) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, key)
}

// autosaveLoop periodically persists dirty conversations through the gated
// path until Stop is called.
func (r *Reconciler) autosaveLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.Flush(ctx)
			cancel()
		}
	}
}
