// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"polychat/internal/model"
	"polychat/internal/provider"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// stubAdapter records invocations and returns a canned reply or error.
type stubAdapter struct {
	name        string
	needsCred   bool
	promptLimit int

	calls      int
	lastPrompt string
	lastCred   string

	reply string
	err   error
	delay time.Duration
}

func (s *stubAdapter) Name() string             { return s.name }
func (s *stubAdapter) RequiresCredential() bool { return s.needsCred }

func (s *stubAdapter) PromptLimit() int {
	if s.promptLimit > 0 {
		return s.promptLimit
	}
	return provider.DefaultPromptLimit
}

func (s *stubAdapter) Invoke(ctx context.Context, prompt, modelName, credential string) (provider.RawReply, error) {
	s.calls++
	s.lastPrompt = prompt
	s.lastCred = credential
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return provider.RawReply{}, &provider.Error{Kind: provider.KindUnreachable, Provider: s.name, Cause: ctx.Err()}
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return provider.RawReply{}, s.err
	}
	return provider.RawReply{Text: s.reply}, nil
}

// stubCredentials is an in-memory credential source.
type stubCredentials map[string]string

func (s stubCredentials) Get(providerName string) (string, bool) {
	cred, ok := s[providerName]
	return cred, ok
}

func newTestGateway(adapters []*stubAdapter, creds stubCredentials, timeout time.Duration) *Gateway {
	r := provider.NewRegistry()
	for _, a := range adapters {
		r.Register(a)
	}
	return New(r, creds, timeout)
}

// =============================================================================
// INVOKE TESTS
// =============================================================================

func TestInvokeExtractsReasoning(t *testing.T) {
	local := &stubAdapter{name: "ollama", reply: "<reason>thinking</reason>Hi there!"}
	g := newTestGateway([]*stubAdapter{local}, stubCredentials{}, 0)

	reply, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "ollama", ModelName: "m1"}, "user: Hello")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if reply.VisibleText != "Hi there!" {
		t.Errorf("VisibleText = %q", reply.VisibleText)
	}
	if reply.ReasoningText != "thinking" {
		t.Errorf("ReasoningText = %q", reply.ReasoningText)
	}
	if reply.Provider != "ollama" || reply.Model != "m1" {
		t.Errorf("provenance = %q/%q", reply.Provider, reply.Model)
	}
}

func TestInvokeUnsupportedProvider(t *testing.T) {
	g := newTestGateway(nil, stubCredentials{}, 0)

	_, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "nope", ModelName: "m"}, "p")
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestCredentialGateBlocksBeforeAdapter(t *testing.T) {
	hosted := &stubAdapter{name: "openai", needsCred: true, reply: "never seen"}
	g := newTestGateway([]*stubAdapter{hosted}, stubCredentials{}, 0)

	_, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "openai", ModelName: "gpt-4o"}, "p")
	if !errors.Is(err, ErrCredentialRequired) {
		t.Errorf("expected ErrCredentialRequired, got %v", err)
	}
	// The gate fires before any network call.
	if hosted.calls != 0 {
		t.Errorf("adapter called %d times, want 0", hosted.calls)
	}
}

func TestCredentialPassedThrough(t *testing.T) {
	hosted := &stubAdapter{name: "openai", needsCred: true, reply: "ok"}
	g := newTestGateway([]*stubAdapter{hosted}, stubCredentials{"openai": "sk-test"}, 0)

	_, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "openai", ModelName: "gpt-4o"}, "p")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if hosted.lastCred != "sk-test" {
		t.Errorf("credential = %q", hosted.lastCred)
	}
}

func TestLocalProviderNeedsNoCredential(t *testing.T) {
	local := &stubAdapter{name: "ollama", reply: "ok"}
	g := newTestGateway([]*stubAdapter{local}, stubCredentials{}, 0)

	if _, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "ollama", ModelName: "m1"}, "p"); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if local.lastCred != "" {
		t.Errorf("local adapter should get no credential, got %q", local.lastCred)
	}
}

func TestPromptTruncatedToProviderLimit(t *testing.T) {
	local := &stubAdapter{name: "ollama", reply: "ok", promptLimit: 10}
	g := newTestGateway([]*stubAdapter{local}, stubCredentials{}, 0)

	_, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "ollama", ModelName: "m"}, strings.Repeat("x", 100))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(local.lastPrompt) != 10 {
		t.Errorf("prompt length = %d, want 10", len(local.lastPrompt))
	}
}

func TestPromptTruncationKeepsRunesWhole(t *testing.T) {
	local := &stubAdapter{name: "ollama", reply: "ok", promptLimit: 10}
	g := newTestGateway([]*stubAdapter{local}, stubCredentials{}, 0)

	// 3-byte runes; a byte-boundary cut at 10 would split the fourth one.
	_, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "ollama", ModelName: "m"}, strings.Repeat("你", 8))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(local.lastPrompt) > 10 {
		t.Errorf("prompt length = %d, want at most 10", len(local.lastPrompt))
	}
	if !utf8.ValidString(local.lastPrompt) {
		t.Errorf("truncated prompt is not valid UTF-8: %q", local.lastPrompt)
	}
	if local.lastPrompt != strings.Repeat("你", 3) {
		t.Errorf("prompt = %q, want three whole runes", local.lastPrompt)
	}
}

func TestInvokeTimeoutIsBounded(t *testing.T) {
	slow := &stubAdapter{name: "ollama", reply: "ok", delay: 500 * time.Millisecond}
	g := newTestGateway([]*stubAdapter{slow}, stubCredentials{}, 20*time.Millisecond)

	start := time.Now()
	_, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "ollama", ModelName: "m"}, "p")
	elapsed := time.Since(start)

	pe, ok := provider.AsError(err)
	if !ok || pe.Kind != provider.KindUnreachable {
		t.Errorf("expected KindUnreachable, got %v", err)
	}
	if elapsed > 400*time.Millisecond {
		t.Errorf("invocation took %v, wait ceiling not enforced", elapsed)
	}
}

func TestInvokeEmptyReplyNeverEmptyVisible(t *testing.T) {
	local := &stubAdapter{name: "ollama", reply: ""}
	g := newTestGateway([]*stubAdapter{local}, stubCredentials{}, 0)

	reply, err := g.Invoke(context.Background(), model.ModelSelection{Provider: "ollama", ModelName: "m"}, "p")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if reply.VisibleText == "" {
		t.Error("visible text must never be empty")
	}
}

// =============================================================================
// PROMPT LINEARIZATION TESTS
// =============================================================================

func TestLinearizePrompt(t *testing.T) {
	msgs := []*model.Message{
		model.NewUserMessage("Hello"),
		model.NewAssistantMessage("Hi there!", "", "ollama", "m1"),
		model.NewUserMessage("How are you?"),
	}

	got := LinearizePrompt(msgs)
	want := "user: Hello\nassistant: Hi there!\nuser: How are you?"
	if got != want {
		t.Errorf("LinearizePrompt = %q, want %q", got, want)
	}
}

// =============================================================================
// FAILURE MESSAGE TESTS
// =============================================================================

func TestFailureMessage(t *testing.T) {
	sel := model.ModelSelection{Provider: "openai", ModelName: "gpt-4o"}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &provider.Error{Kind: provider.KindUnauthorized, Provider: "openai"}, "rejected"},
		{"rate limited", &provider.Error{Kind: provider.KindRateLimited, Provider: "openai"}, "rate limiting"},
		{"unreachable", &provider.Error{Kind: provider.KindUnreachable, Provider: "openai"}, "Unable to reach"},
		{"rejected", &provider.Error{Kind: provider.KindProviderRejected, Provider: "openai", Message: "bad model"}, "bad model"},
		{"plain error", errors.New("boom"), "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FailureMessage(sel, tt.err)
			if msg.Role != model.RoleAssistant {
				t.Errorf("Role = %q, want assistant", msg.Role)
			}
			if msg.Content == "" {
				t.Error("failure bubble must have visible text")
			}
			if !strings.Contains(msg.Content, tt.want) {
				t.Errorf("Content = %q, want substring %q", msg.Content, tt.want)
			}
			if !strings.Contains(msg.Reasoning, "gpt-4o") {
				t.Errorf("Reasoning = %q, should name the model", msg.Reasoning)
			}
		})
	}
}
