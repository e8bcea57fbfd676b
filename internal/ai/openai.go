package ai

import (
	"context"
	"errors"
	"io"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible host through the official
// client library.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func toOpenAITools(tools []Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: ToolFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, Usage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(opts.Tools),
	})
	if err != nil {
		return "", Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, errors.New("openai: empty response")
	}
	u := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, u, nil
}

func (p *OpenAIProvider) GenerateStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamDelta, <-chan error) {
	deltas := make(chan StreamDelta, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:         p.model,
			Messages:      toOpenAIMessages(messages),
			Tools:         toOpenAITools(opts.Tools),
			Stream:        true,
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		})
		if err != nil {
			errs <- err
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- err
				return
			}

			var d StreamDelta
			if len(resp.Choices) > 0 {
				delta := resp.Choices[0].Delta
				d.Content = delta.Content
				d.Reasoning = delta.ReasoningContent
				d.ToolCalls = fromOpenAIToolCalls(delta.ToolCalls)
			}
			if resp.Usage != nil {
				d.Usage = &Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			if d.Content != "" || d.Reasoning != "" || len(d.ToolCalls) > 0 || d.Usage != nil {
				deltas <- d
			}
		}
	}()

	return deltas, errs
}

func (p *OpenAIProvider) CountTokens(messages []Message) int {
	enc, err := tiktoken.EncodingForModel(p.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return estimateTokens(messages)
	}
	total := 0
	for _, m := range messages {
		// per-message wrapping overhead mirrors the chat format
		total += len(enc.Encode(m.Content, nil, nil)) + 4
		total += len(enc.Encode(m.Role, nil, nil))
	}
	return total + 2
}

var _ Provider = (*OpenAIProvider)(nil)
var _ Provider = (*OllamaProvider)(nil)
var _ Provider = (*OpenRouterProvider)(nil)

// Hosts known to the default wiring.
const (
	HostOpenAI     = "openai"
	HostOllama     = "ollama"
	HostOpenRouter = "openrouter"
)
