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

const (
	// DefaultAnthropicURL is the Anthropic API base URL.
	DefaultAnthropicURL = "https://api.anthropic.com"

	// anthropicVersion is the required API version header value.
	anthropicVersion = "2023-06-01"

	// defaultAnthropicModel is used when the selection leaves the model empty.
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"
)

// AnthropicAdapter talks to the Anthropic messages API. Its unwrap rule is
// the first content block's text; auth travels in the x-api-key header
// rather than a Bearer token.
type AnthropicAdapter struct {
	baseURL string
}

// NewAnthropicAdapter creates the Anthropic adapter. An empty baseURL
// selects DefaultAnthropicURL.
func NewAnthropicAdapter(baseURL string) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = DefaultAnthropicURL
	}
	return &AnthropicAdapter{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// RequiresCredential implements Adapter.
func (a *AnthropicAdapter) RequiresCredential() bool { return true }

// PromptLimit implements Adapter.
func (a *AnthropicAdapter) PromptLimit() int { return DefaultPromptLimit }

// anthropicRequest is the /v1/messages request shape.
type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

// anthropicResponse is the /v1/messages response shape.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Invoke implements Adapter.
func (a *AnthropicAdapter) Invoke(ctx context.Context, prompt, modelName, credential string) (RawReply, error) {
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	reqBody, err := json.Marshal(anthropicRequest{
		Model:     modelName,
		MaxTokens: DefaultMaxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to create request", Cause: err}
	}
	req.Header.Set("x-api-key", credential)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := sharedHTTPClient.Do(req)
	req.Header.Del("x-api-key")
	if err != nil {
		return RawReply{}, classifyTransport(a.Name(), err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return RawReply{}, classifyStatus(a.Name(), resp.StatusCode, body)
	}

	var msgResp anthropicResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to parse response", Cause: err}
	}
	if len(msgResp.Content) == 0 {
		return RawReply{}, &Error{Kind: KindProviderRejected, Provider: a.Name(), Message: "response contained no content blocks"}
	}

	return RawReply{Text: msgResp.Content[0].Text}, nil
}
