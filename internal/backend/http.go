package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// StatusError reports a non-success HTTP response from a model endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model http status %d: %s", e.Code, e.Body)
}

// HTTPBackend forwards requests to a generic JSON generation endpoint.
type HTTPBackend struct {
	url    string
	client *resty.Client
}

func NewHTTPBackend(url, token string) *HTTPBackend {
	client := resty.New().
		SetTimeout(60*time.Second).
		SetHeader("Content-Type", "application/json")
	if t := strings.TrimSpace(token); t != "" {
		client.SetAuthToken(t)
	}
	return &HTTPBackend{
		url:    strings.TrimSpace(url),
		client: client,
	}
}

type httpRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
}

func (b *HTTPBackend) Generate(ctx context.Context, req Request) (Response, error) {
	res, err := b.client.R().
		SetContext(ctx).
		SetBody(httpRequest{Model: req.Model, Prompt: req.Prompt, System: req.Preamble}).
		Post(b.url)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	body := res.Body()
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		if len(body) > 4<<10 {
			body = body[:4<<10]
		}
		return Response{}, &StatusError{Code: res.StatusCode(), Body: string(body)}
	}
	return parseHTTPBody(body), nil
}

func parseHTTPBody(body []byte) Response {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return Response{Text: strings.TrimSpace(string(body))}
	}

	var out Response
	out.Text = extractText(obj)
	if raw, ok := obj["candidates"]; ok {
		// Shape mismatches leave Candidates empty; the caller decides what a
		// response without text means.
		_ = json.Unmarshal(raw, &out.Candidates)
	}
	return out
}

func extractText(obj map[string]json.RawMessage) string {
	for _, k := range []string{"text", "output", "message"} {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return ""
}
