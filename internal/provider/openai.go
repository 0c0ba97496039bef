package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIProvider implements Provider for all OpenAI-compatible APIs,
// including OpenAI, DeepSeek, MiniMax, Kimi, Qwen, etc.
type OpenAIProvider struct {
	client openai.Client
	model  string
	name   string
}

// compatibleHosts maps a base URL fragment to the provider name reported for it.
var compatibleHosts = []struct{ fragment, name string }{
	{"deepseek", "deepseek"},
	{"minimax", "minimax"},
	{"generativelanguage.googleapis.com", "gemini"},
	{"moonshot", "kimi"},
	{"dashscope", "qwen"},
	{"bigmodel.cn", "glm"},
	{"volces.com", "doubao"},
	{"groq", "groq"},
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	name := "openai"
	for _, h := range compatibleHosts {
		if baseURL != "" && strings.Contains(baseURL, h.fragment) {
			name = h.name
			break
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		name:   name,
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.model }

func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: p.buildMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)
	return ch, nil
}

// processStream reads the OpenAI SSE stream and emits unified events.
//
// Tool call deltas arrive via delta.ToolCalls[] keyed by index; id and name
// only appear in the first delta for an index and arguments are incremental
// JSON fragments.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], ch chan<- Event) {
	defer close(ch)
	defer stream.Close()

	type pendingCall struct {
		id      string
		name    string
		jsonBuf strings.Builder
	}
	pending := make(map[int]*pendingCall)
	var callOrder []int

	flush := func() {
		for _, idx := range callOrder {
			pc := pending[idx]
			input := pc.jsonBuf.String()
			if input == "" {
				input = "{}"
			}
			ch <- Event{
				Type:     EventToolCallDone,
				ToolCall: &ToolCallRequest{ID: pc.id, Name: pc.name, Input: json.RawMessage(input)},
			}
		}
		callOrder = nil
	}

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			ch <- Event{Type: EventError, Error: err}
			return
		}

		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		// Reasoning models (DeepSeek) stream reasoning_content outside the SDK
		// struct; it must never leak into the classification text.
		if delta.Content == "" && extractReasoningContent(delta.RawJSON()) != "" {
			continue
		}
		if delta.Content != "" {
			ch <- Event{Type: EventTextDelta, TextDelta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := int(tc.Index)
			pc, ok := pending[idx]
			if !ok {
				pc = &pendingCall{}
				pending[idx] = pc
				callOrder = append(callOrder, idx)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.jsonBuf.WriteString(tc.Function.Arguments)
		}

		if string(choice.FinishReason) != "" {
			flush()
			ch <- Event{
				Type: EventDone,
				Usage: &Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				},
			}
			return
		}
	}

	if err := stream.Err(); err != nil {
		ch <- Event{Type: EventError, Error: fmt.Errorf("openai streaming error: %w", err)}
		return
	}
	flush()
	ch <- Event{Type: EventDone, Usage: &Usage{}}
}

// buildMessages converts unified messages to OpenAI API params.
func (p *OpenAIProvider) buildMessages(req *ChatRequest) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		params = append(params, openai.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}
	return params
}

// extractReasoningContent returns the "reasoning_content" field of a raw
// delta chunk, or "" when absent.
func extractReasoningContent(rawJSON string) string {
	var raw struct {
		ReasoningContent string `json:"reasoning_content"`
	}
	if err := json.Unmarshal([]byte(rawJSON), &raw); err != nil {
		return ""
	}
	return raw.ReasoningContent
}
