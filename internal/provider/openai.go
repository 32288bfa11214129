// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// OpenAICompatAdapter serves every provider that speaks the OpenAI
// chat-completions dialect: openai itself, deepseek, grok, and openrouter.
// They share one unwrap rule (choices[0].message.content) and differ only in
// base URL and default model, so one adapter type is instantiated per
// provider name.
type OpenAICompatAdapter struct {
	name         string
	baseURL      string
	defaultModel string
}

// NewOpenAICompatAdapter creates an adapter for one chat-completions
// provider.
func NewOpenAICompatAdapter(name, baseURL, defaultModel string) *OpenAICompatAdapter {
	return &OpenAICompatAdapter{
		name:         name,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
	}
}

// Name implements Adapter.
func (a *OpenAICompatAdapter) Name() string { return a.name }

// RequiresCredential implements Adapter.
func (a *OpenAICompatAdapter) RequiresCredential() bool { return true }

// PromptLimit implements Adapter.
func (a *OpenAICompatAdapter) PromptLimit() int { return DefaultPromptLimit }

// chatMessage is a single turn in the chat-completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat-completions request shape.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// chatResponse is the chat-completions response shape. The unwrap rule for
// this adapter family is the first choice's message content.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Invoke implements Adapter.
func (a *OpenAICompatAdapter) Invoke(ctx context.Context, prompt, modelName, credential string) (RawReply, error) {
	if modelName == "" {
		modelName = a.defaultModel
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:     modelName,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: DefaultMaxTokens,
	})
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.name, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.name, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := sharedHTTPClient.Do(req)

	// Drop the auth header as soon as the request is sent so it cannot end
	// up in logs or error dumps.
	req.Header.Del("Authorization")

	if err != nil {
		return RawReply{}, classifyTransport(a.name, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.name, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return RawReply{}, classifyStatus(a.name, resp.StatusCode, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.name, Message: "failed to parse response", Cause: err}
	}
	if len(chatResp.Choices) == 0 {
		return RawReply{}, &Error{Kind: KindProviderRejected, Provider: a.name, Message: "response contained no choices"}
	}

	return RawReply{Text: chatResp.Choices[0].Message.Content}, nil
}
