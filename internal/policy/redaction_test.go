package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIISecrets(t *testing.T) {
	input := "my bot token is 123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsawq ok"
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if strings.Contains(out, "AAHdqTcv") || !strings.Contains(out, "[REDACTED_SECRET]") {
		t.Fatalf("token not redacted: %q", out)
	}
}

func TestRedactPIIUnchanged(t *testing.T) {
	out, changed := RedactPII("kya haal hai?")
	if changed || out != "kya haal hai?" {
		t.Fatalf("RedactPII() = %q, %v; want input unchanged", out, changed)
	}
}

func TestForLogTruncates(t *testing.T) {
	if got := ForLog("नमस्ते दुनिया", 6); got != "नमस्ते…" {
		t.Fatalf("ForLog() = %q", got)
	}
	if got := ForLog("short", 0); got != "short" {
		t.Fatalf("ForLog() = %q, want %q", got, "short")
	}
}
