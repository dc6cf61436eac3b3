package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"

	"github.com/ent0n29/gemini-relay/internal/backend"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestClassifyBackendError(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		class string
		retry bool
	}{
		{"nil", nil, "none", false},
		{"deadline", fmt.Errorf("gemini generate content: %w", context.DeadlineExceeded), "timeout", true},
		{"canceled", context.Canceled, "canceled", false},
		{"status 503", &backend.StatusError{Code: 503}, "http_5xx", true},
		{"status 401", fmt.Errorf("wrapped: %w", &backend.StatusError{Code: 401}), "http_4xx", false},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429}, "rate_limited", true},
		{"google 400", fmt.Errorf("gemini: %w", &googleapi.Error{Code: 400}), "http_4xx", false},
		{"net op", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, "network", true},
		{"other", errors.New("boom"), "transport", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyBackendError(tc.err)
			if got.Class != tc.class {
				t.Fatalf("Class = %q, want %q", got.Class, tc.class)
			}
			if got.Retryable != tc.retry {
				t.Fatalf("Retryable = %v, want %v", got.Retryable, tc.retry)
			}
		})
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want %v", got, 400*time.Millisecond)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}
