package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiBackend calls the Gemini Developer API through the official SDK.
type GeminiBackend struct {
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required for gemini mode")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (Response, error) {
	model := b.client.GenerativeModel(req.Model)
	if preamble := strings.TrimSpace(req.Preamble); preamble != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(preamble)}}
	}
	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate content: %w", err)
	}
	return fromGenai(resp), nil
}

func (b *GeminiBackend) Close() error {
	return b.client.Close()
}

func fromGenai(resp *genai.GenerateContentResponse) Response {
	var out Response
	if resp == nil {
		return out
	}
	for _, c := range resp.Candidates {
		var cand Candidate
		if c != nil && c.Content != nil {
			content := &Content{Role: c.Content.Role}
			for _, p := range c.Content.Parts {
				if t, ok := p.(genai.Text); ok {
					content.Parts = append(content.Parts, Part{Text: string(t)})
				}
			}
			cand.Content = content
		}
		out.Candidates = append(out.Candidates, cand)
	}
	if len(out.Candidates) > 0 && out.Candidates[0].Content != nil {
		var b strings.Builder
		for _, p := range out.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
		out.Text = b.String()
	}
	return out
}
