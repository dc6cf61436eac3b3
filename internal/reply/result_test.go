package reply

import (
	"errors"
	"testing"

	"github.com/ent0n29/gemini-relay/internal/backend"
	"github.com/ent0n29/gemini-relay/internal/conversation"
)

func TestExtract(t *testing.T) {
	parts := func(texts ...string) []backend.Candidate {
		var ps []backend.Part
		for _, s := range texts {
			ps = append(ps, backend.Part{Text: s})
		}
		return []backend.Candidate{{Content: &backend.Content{Parts: ps}}}
	}
	tests := []struct {
		name string
		resp backend.Response
		kind Kind
		text string
	}{
		{name: "direct text", resp: backend.Response{Text: "hello", Candidates: parts("ignored")}, kind: KindText, text: "hello"},
		{name: "nested parts", resp: backend.Response{Candidates: parts("o", "k")}, kind: KindText, text: "ok"},
		{name: "blank text falls through", resp: backend.Response{Text: "  ", Candidates: parts("ok")}, kind: KindText, text: "ok"},
		{name: "blank everywhere", resp: backend.Response{Text: "\n", Candidates: parts(" ")}, kind: KindMalformed},
		{name: "nothing", resp: backend.Response{}, kind: KindMalformed},
		{name: "nil content", resp: backend.Response{Candidates: []backend.Candidate{{}}}, kind: KindMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.resp)
			if got.Kind != tc.kind || got.Text != tc.text {
				t.Fatalf("Extract() = %+v, want kind=%v text=%q", got, tc.kind, tc.text)
			}
		})
	}
}

func TestFallbacksFor(t *testing.T) {
	f := Fallbacks{Unreachable: "down"}.withDefaults()
	if got := f.For(Result{Kind: KindTransportError, Err: errors.New("x")}); got != "down" {
		t.Fatalf("For(transport) = %q, want down", got)
	}
	if got := f.For(Result{Kind: KindMalformed}); got != DefaultFallbacks().Malformed {
		t.Fatalf("For(malformed) = %q", got)
	}
	if got := f.For(Result{Kind: KindText, Text: "hi"}); got != "hi" {
		t.Fatalf("For(text) = %q, want hi", got)
	}
}

func TestFormatPrompt(t *testing.T) {
	h := conversation.History{
		conversation.UserTurn("hi"),
		conversation.AssistantTurn("hello"),
		conversation.UserTurn("bye"),
	}
	want := "user: hi\nassistant: hello\nuser: bye"
	if got := FormatPrompt(h); got != want {
		t.Fatalf("FormatPrompt() = %q, want %q", got, want)
	}
	if got := FormatPrompt(nil); got != "" {
		t.Fatalf("FormatPrompt(nil) = %q, want empty", got)
	}
}
