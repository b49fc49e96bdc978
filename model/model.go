package model

import (
	"context"
	"fmt"

	"github.com/conciergekit/concierge/core"
)

// ToolDefinition declaratively exposes a callable tool to the provider.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized provider input produced by the
// orchestrator: system instructions, a conversation history window, and the
// tools the provider may choose to invoke.
type Request struct {
	Instructions string           `json:"instructions"`
	History      []core.Message   `json:"history"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a result.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the single generation outcome of a provider call. Message is an
// assistant message whose parts carry plain text, tool call requests, or
// both. Provider and Attempts are filled in by the Manager.
type Result struct {
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
	Provider     string       `json:"provider,omitempty"`
	Attempts     []Attempt    `json:"attempts,omitempty"`
}

// Text concatenates the text parts of the result message.
func (r *Result) Text() string { return r.Message.Text() }

// ToolCalls returns the structured tool call requests, if any.
func (r *Result) ToolCalls() []core.ToolCall { return r.Message.ToolCalls() }

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`     // Model name, e.g. "gpt-4o-mini"
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Provider is the uniform contract wrapping an external text-generation
// backend.
//
// Generate performs exactly one network-bound generation and returns a
// single Result or an error (a *ProviderError where the failure class is
// known). Available reports whether the provider's credential and
// configuration are usable based on local checks only; it must not hide the
// possibility that Generate later fails regardless. Providers have no local
// mutable state and are safe for concurrent use.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Available() bool
	Info() Info
}

// ProviderError classifies a failed provider call. Transient errors
// (timeouts, rate limits, 5xx-equivalents) are safe to retry on the next
// provider in the fallback chain; non-transient errors indicate a
// client-side fault and abort the chain.
type ProviderError struct {
	Provider  string `json:"provider"`
	Code      string `json:"code"` // "timeout", "rate_limit", "server", "invalid_request", "unavailable"
	Transient bool   `json:"transient"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed [%s]: %v", e.Provider, e.Code, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ProviderError) Unwrap() error { return e.Err }

// NewTransientError wraps a retryable provider failure.
func NewTransientError(provider, code string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Transient: true, Err: err}
}

// NewFatalError wraps a client-side provider failure that must not be
// retried across the fallback chain.
func NewFatalError(provider, code string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Transient: false, Err: err}
}
