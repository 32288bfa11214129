// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider contains the adapters that translate between polychat's
// uniform invoke contract and each backend's wire format.
package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// Configuration constants shared by all adapters.
const (
	// DefaultMaxTokens is the completion budget sent to hosted providers.
	DefaultMaxTokens = 2000

	// MaxResponseSize caps response bodies to prevent memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// DefaultPromptLimit is the prompt budget for providers that don't
	// declare one. Enforcement happens at the gateway, not here.
	DefaultPromptLimit = 128 * 1024
)

// sharedHTTPClient is used by every hosted adapter. Connection pooling
// reduces TCP handshake overhead across exchanges; individual calls are
// bounded via request contexts rather than a client-level timeout.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// ADAPTER CONTRACT
// =============================================================================

// RawReply is an adapter's unwrapped reply: plain text, shape-free.
type RawReply struct {
	Text string
}

// Adapter translates the uniform invoke contract into one provider's wire
// format. Adapters never interpret or mutate the prompt; each owns exactly
// one reply-shape unwrapping rule, which is why there is one adapter per
// provider rather than a shared code path.
type Adapter interface {
	// Name returns the provider name this adapter serves.
	Name() string

	// RequiresCredential reports whether Invoke needs a non-empty credential.
	RequiresCredential() bool

	// PromptLimit returns the provider's maximum prompt length in bytes.
	PromptLimit() int

	// Invoke sends the linearized prompt to the provider and returns the
	// unwrapped reply text. Failures are *Error values classified by Kind.
	Invoke(ctx context.Context, prompt, modelName, credential string) (RawReply, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps provider names to adapters. Adding a provider means
// registering one adapter; nothing downstream changes.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name, replacing any previous one.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Lookup returns the adapter for a provider name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every built-in adapter: the local
// Ollama backend plus the hosted REST providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewOllamaAdapter(""))
	r.Register(NewOpenAICompatAdapter("openai", "https://api.openai.com/v1", "gpt-4o"))
	r.Register(NewOpenAICompatAdapter("deepseek", "https://api.deepseek.com/v1", "deepseek-coder"))
	r.Register(NewOpenAICompatAdapter("grok", "https://api.x.ai/v1", "grok-3"))
	r.Register(NewOpenAICompatAdapter("openrouter", "https://openrouter.ai/api/v1", "openai/gpt-4o"))
	r.Register(NewAnthropicAdapter(""))
	r.Register(NewGeminiAdapter(""))
	return r
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// readBody reads a response body with a hard size limit.
func readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", int64(MaxResponseSize))
	}
	return body, nil
}
