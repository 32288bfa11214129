// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway normalizes calls to every LLM backend behind one invoke
// surface: adapter resolution, the credential gate, the bounded wait, error
// classification, and reasoning extraction.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"polychat/internal/model"
	"polychat/internal/provider"
	"polychat/internal/reasoning"
	"polychat/internal/util"
)

// DefaultTimeout bounds a single provider invocation. Exceeding it surfaces
// as unreachable rather than hanging the caller.
const DefaultTimeout = 60 * time.Second

// Sentinel errors surfaced before any network call happens.
var (
	// ErrUnsupportedProvider means no adapter is registered for the
	// selected provider name.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrCredentialRequired means the provider needs a credential and the
	// store has none. This is a recoverable condition: the remedy is
	// prompting for a key, not an error banner.
	ErrCredentialRequired = errors.New("credential required")
)

// CredentialSource is the read side of the credential store.
type CredentialSource interface {
	Get(providerName string) (string, bool)
}

// Reply is the normalized result of one invocation.
type Reply struct {
	VisibleText   string
	ReasoningText string
	Provider      string
	Model         string
}

// Gateway dispatches invocations to the adapter registry. It keeps no state
// between calls, so concurrent invocations for different conversations are
// independent.
type Gateway struct {
	registry    *provider.Registry
	credentials CredentialSource
	timeout     time.Duration
}

// New creates a gateway over the given registry and credential source.
// A zero timeout selects DefaultTimeout.
func New(registry *provider.Registry, credentials CredentialSource, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		registry:    registry,
		credentials: credentials,
		timeout:     timeout,
	}
}

// Providers returns the provider names the gateway can dispatch to.
func (g *Gateway) Providers() []string {
	return g.registry.Names()
}

// Invoke runs one exchange against the selected provider and model.
//
// The steps are terminal in one call: resolve the adapter, enforce the
// credential gate, truncate the prompt to the provider's budget, invoke
// under the bounded wait, extract reasoning, return. Provider failures are
// never retried here; retrying a paid call without user consent is a
// cost and ordering hazard.
func (g *Gateway) Invoke(ctx context.Context, sel model.ModelSelection, prompt string) (Reply, error) {
	// Resolve.
	adapter, ok := g.registry.Lookup(sel.Provider)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, sel.Provider)
	}

	// Gate. Intercepted before any network traffic.
	credential := ""
	if adapter.RequiresCredential() {
		cred, ok := g.credentials.Get(sel.Provider)
		if !ok || cred == "" {
			return Reply{}, fmt.Errorf("%w: %s", ErrCredentialRequired, sel.Provider)
		}
		credential = cred
	}

	// Truncation policy lives here, not in the adapter. The cut lands on
	// a rune boundary so the provider never sees a mangled character.
	if limit := adapter.PromptLimit(); limit > 0 && len(prompt) > limit {
		prompt = util.TruncateBytes(prompt, limit)
	}

	// Invoke under the bounded wait.
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := adapter.Invoke(callCtx, prompt, sel.ModelName, credential)
	if err != nil {
		return Reply{}, err
	}

	// Extract.
	res := reasoning.Extract(raw.Text, sel.Provider, sel.ModelName)

	return Reply{
		VisibleText:   res.Visible,
		ReasoningText: res.Reasoning,
		Provider:      sel.Provider,
		Model:         sel.ModelName,
	}, nil
}

// LinearizePrompt flattens a conversation into role-prefixed turns, the
// full context every adapter receives.
func LinearizePrompt(messages []*model.Message) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(msg.Role.String())
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
	}
	return sb.String()
}

// FailureMessage converts a non-gate invocation failure into a synthetic
// assistant message so the conversation always gets a response bubble. The
// visible text states the failure class; the reasoning explains the cause.
func FailureMessage(sel model.ModelSelection, err error) *model.Message {
	kind := provider.KindUnknown
	detail := err.Error()
	if pe, ok := provider.AsError(err); ok {
		kind = pe.Kind
		if pe.Message != "" {
			detail = pe.Message
		}
	}

	var visible string
	switch kind {
	case provider.KindUnauthorized:
		visible = fmt.Sprintf("The %s API key was rejected. Update it and try again.", sel.Provider)
	case provider.KindRateLimited:
		visible = fmt.Sprintf("%s is rate limiting requests. Wait a moment and try again.", sel.Provider)
	case provider.KindUnreachable:
		visible = fmt.Sprintf("Unable to reach %s.", sel.Provider)
	case provider.KindProviderRejected:
		visible = fmt.Sprintf("%s rejected the request: %s", sel.Provider, detail)
	default:
		visible = fmt.Sprintf("The request to %s failed.", sel.Provider)
	}

	reasoningText := fmt.Sprintf("Invocation of %s/%s failed: %s", sel.Provider, sel.ModelName, detail)
	return model.NewAssistantMessage(visible, reasoningText, sel.Provider, sel.ModelName)
}
