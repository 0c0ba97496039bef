package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoCompleter is returned by NoCompleter for every request.
var ErrNoCompleter = errors.New("no completion adapter configured")

// SignalType tags the variant carried by a CompletionSignal.
type SignalType string

const (
	SignalText    SignalType = "text"
	SignalToolUse SignalType = "tool_use"
	SignalError   SignalType = "error"
)

// CompletionConfig carries per-request sampling settings.
type CompletionConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Stream is a transport hint. Adapters built on a streaming Provider
	// always drain the stream into one signal.
	Stream bool
}

// CompletionSignal is the folded outcome of one completion request:
//
//	{Type: text, Content} | {Type: tool_use, Calls} | {Type: error, Code, Message, Retryable}
type CompletionSignal struct {
	Type SignalType

	// SignalText
	Content string

	// SignalToolUse
	Calls []*ToolCallRequest

	// SignalError
	Code      string
	Message   string
	Retryable bool
}

// Completer is a single-operation generative adapter.
type Completer interface {
	Complete(ctx context.Context, messages []Message, cfg CompletionConfig) (CompletionSignal, error)
}

// NoCompleter is the degenerate adapter that always fails. It stands in when
// no provider is configured.
type NoCompleter struct{}

func (NoCompleter) Complete(context.Context, []Message, CompletionConfig) (CompletionSignal, error) {
	return CompletionSignal{}, ErrNoCompleter
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []Message, cfg CompletionConfig) (CompletionSignal, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []Message, cfg CompletionConfig) (CompletionSignal, error) {
	return f(ctx, messages, cfg)
}

// ProviderCompleter drives a streaming Provider and folds its events into a
// CompletionSignal. Stream errors become SignalError values; only request
// construction failures are returned as errors.
type ProviderCompleter struct {
	provider Provider
}

// NewProviderCompleter wraps p.
func NewProviderCompleter(p Provider) *ProviderCompleter {
	return &ProviderCompleter{provider: p}
}

// Name returns the wrapped provider's name.
func (c *ProviderCompleter) Name() string { return c.provider.Name() }

func (c *ProviderCompleter) Complete(ctx context.Context, messages []Message, cfg CompletionConfig) (CompletionSignal, error) {
	req := &ChatRequest{
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
	temp := cfg.Temperature
	req.Temperature = &temp

	// System messages travel in the dedicated field; adapters differ in how
	// they accept them.
	var system []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, m)
	}
	req.SystemPrompt = strings.Join(system, "\n\n")

	events, err := c.provider.Chat(ctx, req)
	if err != nil {
		return CompletionSignal{}, fmt.Errorf("%s chat: %w", c.provider.Name(), err)
	}
	return foldEvents(events), nil
}

// foldEvents drains the event channel completely, even after an error, so
// the provider goroutine can exit.
func foldEvents(events <-chan Event) CompletionSignal {
	var (
		text  strings.Builder
		calls []*ToolCallRequest
		fail  error
	)
	for ev := range events {
		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.TextDelta)
		case EventToolCallDone:
			if ev.ToolCall != nil {
				calls = append(calls, ev.ToolCall)
			}
		case EventError:
			if fail == nil {
				fail = ev.Error
			}
		}
	}

	switch {
	case fail != nil:
		code, retryable := classifyError(fail)
		return CompletionSignal{Type: SignalError, Code: code, Message: fail.Error(), Retryable: retryable}
	case len(calls) > 0:
		return CompletionSignal{Type: SignalToolUse, Calls: calls}
	default:
		return CompletionSignal{Type: SignalText, Content: text.String()}
	}
}

// classifyError maps a provider failure to a short code and whether a retry
// could succeed (rate limit, overload, server error, network).
func classifyError(err error) (string, bool) {
	if errors.Is(err, context.Canceled) {
		return "cancelled", false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline_exceeded", false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		return "rate_limited", true
	case strings.Contains(msg, "529") || strings.Contains(msg, "overloaded"):
		return "overloaded", true
	case containsAny(msg, "500", "502", "503", "504"):
		return "server_error", true
	case containsAny(msg, "connection refused", "connection reset", "timeout", "eof", "temporary failure"):
		return "network", true
	default:
		return "provider_error", false
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
