package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"

	"github.com/ent0n29/gemini-relay/internal/backend"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// BackendFailure describes why a model backend call failed.
type BackendFailure struct {
	Class      string
	HTTPStatus int
	Retryable  bool
}

// ClassifyBackendError maps a backend error onto a small set of classes for
// logs and metrics. The relay itself never retries; Retryable is reported so
// operators can tell transient outages from configuration mistakes.
func ClassifyBackendError(err error) BackendFailure {
	if err == nil {
		return BackendFailure{Class: "none"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return BackendFailure{Class: "timeout", Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return BackendFailure{Class: "canceled"}
	}

	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return httpFailure(statusErr.Code)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return httpFailure(apiErr.HTTPStatusCode)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return httpFailure(gErr.Code)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return httpFailure(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return BackendFailure{Class: "timeout", Retryable: true}
		}
		return BackendFailure{Class: "network", Retryable: true}
	}
	return BackendFailure{Class: "transport"}
}

func httpFailure(code int) BackendFailure {
	class := "http_other"
	switch {
	case code == 429:
		class = "rate_limited"
	case code >= 500:
		class = "http_5xx"
	case code >= 400:
		class = "http_4xx"
	}
	return BackendFailure{Class: class, HTTPStatus: code, Retryable: IsRetryableHTTPStatus(code)}
}

func (f BackendFailure) String() string {
	if f.HTTPStatus > 0 {
		return fmt.Sprintf("%s(%d)", f.Class, f.HTTPStatus)
	}
	return f.Class
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
