package bot

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageShort(t *testing.T) {
	got := SplitMessage("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("SplitMessage() = %q, want [hello]", got)
	}
}

func TestSplitMessagePrefersWordBoundary(t *testing.T) {
	got := SplitMessage("aaaa bbbb cccc", 10)
	want := []string{"aaaa bbbb", "cccc"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("SplitMessage() = %q, want %q", got, want)
	}
}

func TestSplitMessageDropsBlankTail(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"aaaaaaaaaa ", []string{"aaaaaaaaaa"}},
		{"aaaaaaaaaa\n\n ", []string{"aaaaaaaaaa"}},
		{"aaaa bbbb cccc  ", []string{"aaaa bbbb", "cccc"}},
	}
	for _, tc := range cases {
		got := SplitMessage(tc.in, 10)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("SplitMessage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitMessageRuneSafe(t *testing.T) {
	text := strings.Repeat("नमस्ते", 1000)
	for _, part := range SplitMessage(text, MaxMessageRunes) {
		if !utf8.ValidString(part) {
			t.Fatalf("part is not valid utf8")
		}
		if n := utf8.RuneCountInString(part); n > MaxMessageRunes {
			t.Fatalf("part has %d runes, want <= %d", n, MaxMessageRunes)
		}
	}
}
