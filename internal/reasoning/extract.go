// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reasoning splits a raw model reply into visible text and the
// model's rationale.
package reasoning

import "strings"

// Reasoning region delimiters. Providers that emit a rationale wrap it in
// these markers; they must never appear in normal visible output.
const (
	OpenMarker  = "<reason>"
	CloseMarker = "</reason>"
)

// FallbackVisible replaces an otherwise-empty reply so the user never sees
// an empty bubble.
const FallbackVisible = "I wasn't able to produce a response. Please try again."

// Result is the outcome of an extraction.
type Result struct {
	Visible   string
	Reasoning string
}

// Extract splits raw reply text into visible text and reasoning.
//
// If a delimited region exists, the reasoning is the first region's trimmed
// inner text and the visible text is the raw text with every complete
// region removed, trimmed. Removing all regions keeps the transform
// idempotent even on degenerate multi-region replies. An opening marker
// with no closing marker is tolerated: the remaining text stays visible and
// nothing is extracted from it. When no region exists, a one-line note
// naming the provider and model stands in for the rationale.
//
// Running Extract on the visible output of a prior run finds no markers and
// changes nothing. Markdown outside the delimited regions is never touched.
func Extract(raw, providerName, modelName string) Result {
	visible := raw
	reasoningText := ""

	for {
		start := strings.Index(visible, OpenMarker)
		if start < 0 {
			break
		}
		rest := visible[start+len(OpenMarker):]
		end := strings.Index(rest, CloseMarker)
		if end < 0 {
			break
		}
		if reasoningText == "" {
			reasoningText = strings.TrimSpace(rest[:end])
		}
		visible = visible[:start] + rest[end+len(CloseMarker):]
	}

	visible = strings.TrimSpace(visible)
	if visible == "" {
		visible = FallbackVisible
	}
	if reasoningText == "" {
		reasoningText = syntheticNote(providerName, modelName)
	}

	return Result{Visible: visible, Reasoning: reasoningText}
}

// syntheticNote is the stand-in rationale for replies without a delimited
// region.
func syntheticNote(providerName, modelName string) string {
	if providerName == "" && modelName == "" {
		return "No reasoning was provided."
	}
	return "No reasoning was provided by " + providerName + "/" + modelName + "."
}
