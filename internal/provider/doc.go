// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider contains one adapter per LLM backend.
//
// Every adapter implements the same contract: map the linearized prompt into
// the provider's wire shape, unwrap the provider's reply shape back to plain
// text, and classify failures into the shared taxonomy (unauthorized, rate
// limited, unreachable, rejected, unknown). Adapters never interpret the
// prompt and keep no state beyond their endpoint configuration.
//
// Providers:
//   - ollama: local inference server, no credential
//   - openai, deepseek, grok, openrouter: OpenAI chat-completions dialect
//   - anthropic: messages API, x-api-key auth
//   - gemini: generateContent API, query-parameter auth
package provider
