package backend

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
// The preamble becomes the system message and the formatted prompt the single
// user message; choices are reported as candidates.
type OpenAIBackend struct {
	client *openai.Client
}

func NewOpenAIBackend(apiKey, baseURL string) *OpenAIBackend {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if u := strings.TrimSpace(baseURL); u != "" {
		cfg.BaseURL = strings.TrimRight(u, "/")
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg)}
}

func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if preamble := strings.TrimSpace(req.Preamble); preamble != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: preamble,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return fromChatCompletion(resp), nil
}

func fromChatCompletion(resp openai.ChatCompletionResponse) Response {
	var out Response
	for _, choice := range resp.Choices {
		out.Candidates = append(out.Candidates, Candidate{
			Content: &Content{
				Role:  choice.Message.Role,
				Parts: []Part{{Text: choice.Message.Content}},
			},
		})
	}
	return out
}
