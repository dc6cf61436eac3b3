package backend

import (
	"context"
	"fmt"
	"strings"
)

// MockBackend provides deterministic local replies when no model is configured.
type MockBackend struct{}

func NewMockBackend() *MockBackend { return &MockBackend{} }

func (b *MockBackend) Generate(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}
	return Response{Text: buildMockReply(req.Prompt)}, nil
}

func buildMockReply(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	last = strings.TrimSpace(strings.TrimPrefix(last, "user:"))
	if last == "" {
		return "I am listening."
	}
	if len(lines) == 1 {
		return fmt.Sprintf("I heard you: %s", last)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember %d earlier lines.", last, len(lines)-1)
}

// EchoBackend answers with "echo:" followed by the full prompt.
type EchoBackend struct{}

func NewEchoBackend() *EchoBackend { return &EchoBackend{} }

func (b *EchoBackend) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return Response{Text: "echo:" + req.Prompt}, nil
}
