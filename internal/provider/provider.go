// Package provider defines the unified interface and shared types for the LLM
// backends that serve as generative classifiers. Each adapter (openai.go,
// anthropic.go) normalizes the vendor's streaming response into a unified
// Event sequence; Completer folds that sequence into a single CompletionSignal.
package provider

import (
	"context"
	"encoding/json"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single text message in a completion request.
type Message struct {
	Role    Role
	Content string
}

// SystemMessage builds a system-role message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// UserMessage builds a user-role message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request format sent to a provider.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the LLM.
	EventTextDelta EventType = iota

	// EventToolCallDone: a complete tool call (emitted after internal JSON assembly).
	EventToolCallDone

	// EventDone: end of this message turn, includes token usage.
	EventDone

	// EventError: an error occurred.
	EventError
)

// Event is the unified streaming event emitted by a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventToolCallDone
	ToolCall *ToolCallRequest

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// ToolCallRequest represents a tool call requested by the LLM.
type ToolCallRequest struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM providers.
// Implementors are responsible for:
// 1. Converting the unified ChatRequest into the provider's API request format
// 2. Converting the provider's streaming response into a unified Event sequence
// 3. Internally assembling streaming tool-use JSON fragments
type Provider interface {
	// Chat initiates a streaming conversation.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The caller must fully consume the channel to avoid goroutine leaks.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai", "deepseek".
	Name() string

	// DefaultModel returns the default model.
	DefaultModel() string
}
