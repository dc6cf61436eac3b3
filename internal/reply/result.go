package reply

import (
	"strings"

	"github.com/ent0n29/gemini-relay/internal/backend"
)

// Kind tags the outcome of one backend call.
type Kind int

const (
	KindText Kind = iota
	KindMalformed
	KindTransportError
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMalformed:
		return "malformed"
	case KindTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result is what the backend wrapper hands back: extracted text, a response
// with nothing usable in it, or a failure to get a response at all.
type Result struct {
	Kind Kind
	Text string
	Err  error
}

// Extract pulls reply text out of a backend response. The direct text field
// wins; otherwise the first candidate carrying text parts is used.
func Extract(resp backend.Response) Result {
	if strings.TrimSpace(resp.Text) != "" {
		return Result{Kind: KindText, Text: resp.Text}
	}
	if text := backend.FirstCandidateText(resp.Candidates); strings.TrimSpace(text) != "" {
		return Result{Kind: KindText, Text: text}
	}
	return Result{Kind: KindMalformed}
}

// Fallbacks are the user-facing strings shown when no model text is available.
type Fallbacks struct {
	Unreachable string
	Malformed   string
	Internal    string
}

func DefaultFallbacks() Fallbacks {
	return Fallbacks{
		Unreachable: "The model backend is unreachable right now. Please try again in a little while.",
		Malformed:   "The model sent back a response without any text. Please try again.",
		Internal:    "Something went wrong on our side. Please try again later.",
	}
}

func (f Fallbacks) withDefaults() Fallbacks {
	d := DefaultFallbacks()
	if strings.TrimSpace(f.Unreachable) == "" {
		f.Unreachable = d.Unreachable
	}
	if strings.TrimSpace(f.Malformed) == "" {
		f.Malformed = d.Malformed
	}
	if strings.TrimSpace(f.Internal) == "" {
		f.Internal = d.Internal
	}
	return f
}

// For returns the text the user sees for r.
func (f Fallbacks) For(r Result) string {
	switch r.Kind {
	case KindText:
		return r.Text
	case KindMalformed:
		return f.Malformed
	default:
		return f.Unreachable
	}
}
