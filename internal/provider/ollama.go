// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

// DefaultOllamaURL is the local inference server address. Uses the explicit
// IPv4 address instead of localhost to avoid IPv6 resolution issues on
// Windows.
const DefaultOllamaURL = "http://127.0.0.1:11434"

// OllamaAdapter talks to a locally hosted Ollama server. No credential is
// required; the server is assumed to be on a trusted local interface.
type OllamaAdapter struct {
	baseURL string
}

// NewOllamaAdapter creates the local adapter. An empty baseURL selects
// DefaultOllamaURL.
func NewOllamaAdapter(baseURL string) *OllamaAdapter {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaAdapter{baseURL: baseURL}
}

// Name implements Adapter.
func (a *OllamaAdapter) Name() string { return "ollama" }

// RequiresCredential implements Adapter. The local backend never needs one.
func (a *OllamaAdapter) RequiresCredential() bool { return false }

// PromptLimit implements Adapter.
func (a *OllamaAdapter) PromptLimit() int { return DefaultPromptLimit }

// generateRequest is Ollama's /api/generate request shape.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is Ollama's /api/generate response shape. The unwrap
// rule for this adapter is the top-level "response" field.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Invoke implements Adapter.
func (a *OllamaAdapter) Invoke(ctx context.Context, prompt, modelName, credential string) (RawReply, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:  modelName,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sharedHTTPClient.Do(req)
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

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to parse response", Cause: err}
	}

	return RawReply{Text: genResp.Response}, nil
}

// CheckRunning verifies that the local server is reachable. Used by the CLI
// to give an early hint before the first exchange.
func (a *OllamaAdapter) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL, nil)
	if err != nil {
		return &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to create request", Cause: err}
	}

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return classifyTransport(a.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindUnreachable, Provider: a.Name(), Message: "unexpected status: " + resp.Status}
	}
	return nil
}

// tagsResponse is Ollama's /api/tags response shape.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of locally available models.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to create request", Cause: err}
	}

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, classifyTransport(a.Name(), err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Provider: a.Name(), Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(a.Name(), resp.StatusCode, body)
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to parse response", Cause: err}
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
