// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// ErrorKind classifies adapter failures uniformly regardless of provider.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// KindUnauthorized means the credential was rejected or missing.
	KindUnauthorized

	// KindRateLimited means the provider throttled the request.
	KindRateLimited

	// KindUnreachable means the provider could not be reached at all:
	// connection failure, DNS failure, or the bounded wait expiring.
	KindUnreachable

	// KindProviderRejected means the provider returned a validation error
	// with a message worth surfacing.
	KindProviderRejected
)

// String returns the kind name for logging and synthetic messages.
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate limited"
	case KindUnreachable:
		return "unreachable"
	case KindProviderRejected:
		return "rejected by provider"
	default:
		return "unknown error"
	}
}

// Error is the classified failure every adapter returns.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Provider + ": " + e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by kind so callers can use errors.Is with a bare-kind target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Provider == "" || t.Provider == e.Provider)
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// apiErrorBody is the common {"error": {"message": ...}} envelope that the
// hosted providers use for failures. Anthropic and Gemini nest the same way.
type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classifyStatus maps an HTTP error response onto the taxonomy.
func classifyStatus(providerName string, statusCode int, body []byte) *Error {
	message := ""
	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil {
		message = apiErr.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, Provider: providerName, Message: message}
	case statusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Provider: providerName, Message: message}
	case statusCode >= 400 && statusCode < 500 && message != "":
		return &Error{Kind: KindProviderRejected, Provider: providerName, Message: message}
	default:
		if message == "" {
			message = http.StatusText(statusCode)
		}
		return &Error{Kind: KindUnknown, Provider: providerName, Message: message}
	}
}

// classifyTransport maps a transport-level failure onto the taxonomy.
// Context expiry counts as unreachable: the bounded wait ran out.
func classifyTransport(providerName string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnreachable, Provider: providerName, Message: "request timed out", Cause: err}
	}
	return &Error{Kind: KindUnreachable, Provider: providerName, Message: "connection failed", Cause: err}
}
