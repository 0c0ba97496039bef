package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicProvider implements Provider using the Anthropic native API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.model }

func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  p.buildMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)
	return ch, nil
}

// processStream reads the Anthropic SSE stream and emits unified events.
//
// Event sequence: ContentBlockStart (tool_use) records id/name,
// ContentBlockDelta carries text or partial tool JSON, ContentBlockStop
// completes a tool call, MessageDelta ends the turn with usage.
func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], ch chan<- Event) {
	defer close(ch)
	defer stream.Close()

	type pendingCall struct {
		id      string
		name    string
		jsonBuf strings.Builder
	}
	pending := make(map[int64]*pendingCall)

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			ch <- Event{Type: EventError, Error: err}
			return
		}

		switch ev := stream.Current().AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "tool_use" {
				use := ev.ContentBlock.AsToolUse()
				pending[ev.Index] = &pendingCall{id: use.ID, name: use.Name}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				ch <- Event{Type: EventTextDelta, TextDelta: d.Text}
			case anthropic.InputJSONDelta:
				if pc, ok := pending[ev.Index]; ok {
					pc.jsonBuf.WriteString(d.PartialJSON)
				}
			}

		case anthropic.ContentBlockStopEvent:
			pc, ok := pending[ev.Index]
			if !ok {
				continue
			}
			input := pc.jsonBuf.String()
			if input == "" {
				input = "{}"
			}
			ch <- Event{
				Type:     EventToolCallDone,
				ToolCall: &ToolCallRequest{ID: pc.id, Name: pc.name, Input: json.RawMessage(input)},
			}
			delete(pending, ev.Index)

		case anthropic.MessageDeltaEvent:
			ch <- Event{
				Type: EventDone,
				Usage: &Usage{
					InputTokens:  int(ev.Usage.InputTokens),
					OutputTokens: int(ev.Usage.OutputTokens),
				},
			}
			return
		}
	}

	if err := stream.Err(); err != nil {
		ch <- Event{Type: EventError, Error: fmt.Errorf("anthropic streaming error: %w", err)}
		return
	}
	ch <- Event{Type: EventDone, Usage: &Usage{}}
}

// buildMessages converts unified messages to Anthropic params. System
// messages are carried by ChatRequest.SystemPrompt and skipped here.
func (p *AnthropicProvider) buildMessages(msgs []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case RoleUser:
			params = append(params, anthropic.NewUserMessage(block))
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(block))
		}
	}
	return params
}
