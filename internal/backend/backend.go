package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultModel is the generative model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

var ErrUnsupportedMode = errors.New("unsupported backend mode")

// Request is the normalized prompt sent to a model backend.
type Request struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Preamble string `json:"system,omitempty"`
}

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

type Candidate struct {
	Content *Content `json:"content,omitempty"`
}

// Response mirrors the shape generative-language APIs return: a convenience
// text field plus the structured candidates it is usually derived from.
// Providers fill whatever they have; either may be empty.
type Response struct {
	Text       string      `json:"text"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Backend turns a prompt into generated text. Transport and API failures are
// returned as errors; an empty Response is not an error.
type Backend interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Config controls backend construction.
type Config struct {
	Mode          string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	HTTPURL       string
	HTTPToken     string
}

func New(ctx context.Context, cfg Config) (Backend, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "gemini"
	}

	switch mode {
	case "gemini":
		return NewGeminiBackend(ctx, cfg.GeminiAPIKey)
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("model http url is required for http mode")
		}
		return NewHTTPBackend(cfg.HTTPURL, cfg.HTTPToken), nil
	case "mock":
		return NewMockBackend(), nil
	case "echo":
		return NewEchoBackend(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedMode, cfg.Mode)
	}
}

// Close releases provider resources when the backend holds any.
func Close(b Backend) error {
	if c, ok := b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// FirstCandidateText joins the text parts of the first candidate that has
// any, which is what SDK convenience accessors report as "the" text.
func FirstCandidateText(candidates []Candidate) string {
	for _, c := range candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}
