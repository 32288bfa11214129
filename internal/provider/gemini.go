// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultGeminiURL is the Google Generative Language API base URL.
	DefaultGeminiURL = "https://generativelanguage.googleapis.com"

	// defaultGeminiModel is used when the selection leaves the model empty.
	defaultGeminiModel = "gemini-1.5-pro"
)

// GeminiAdapter talks to the Google generateContent API. Its unwrap rule is
// candidates[0].content.parts[0].text; the credential travels as a query
// parameter, which is why the request URL is built per call.
type GeminiAdapter struct {
	baseURL string
}

// NewGeminiAdapter creates the Gemini adapter. An empty baseURL selects
// DefaultGeminiURL.
func NewGeminiAdapter(baseURL string) *GeminiAdapter {
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	return &GeminiAdapter{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Name implements Adapter.
func (a *GeminiAdapter) Name() string { return "gemini" }

// RequiresCredential implements Adapter.
func (a *GeminiAdapter) RequiresCredential() bool { return true }

// PromptLimit implements Adapter.
func (a *GeminiAdapter) PromptLimit() int { return DefaultPromptLimit }

// geminiPart is one text part of a content entry.
type geminiPart struct {
	Text string `json:"text"`
}

// geminiContent groups the parts of one turn.
type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

// geminiRequest is the generateContent request shape.
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

// geminiResponse is the generateContent response shape.
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Invoke implements Adapter.
func (a *GeminiAdapter) Invoke(ctx context.Context, prompt, modelName, credential string) (RawReply, error) {
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	var reqData geminiRequest
	reqData.Contents = []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}
	reqData.GenerationConfig.MaxOutputTokens = DefaultMaxTokens

	reqBody, err := json.Marshal(reqData)
	if err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to marshal request", Cause: err}
	}

	endpoint := a.baseURL + "/v1beta/models/" + url.PathEscape(modelName) +
		":generateContent?key=" + url.QueryEscape(credential)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
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

	var genResp geminiResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return RawReply{}, &Error{Kind: KindUnknown, Provider: a.Name(), Message: "failed to parse response", Cause: err}
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return RawReply{}, &Error{Kind: KindProviderRejected, Provider: a.Name(), Message: "response contained no candidates"}
	}

	return RawReply{Text: genResp.Candidates[0].Content.Parts[0].Text}, nil
}
