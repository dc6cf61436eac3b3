package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	tokenPattern = regexp.MustCompile(`\b(?:\d{6,12}:[A-Za-z0-9_-]{30,}|AIza[0-9A-Za-z_-]{30,}|sk-[A-Za-z0-9_-]{20,})\b`)
)

// RedactPII masks common high-risk PII patterns and credentials users paste
// into chats (bot tokens, API keys).
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := tokenPattern.ReplaceAllString(out, "[REDACTED_SECRET]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Cards first, or the phone pattern claims long digit runs.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// ForLog redacts s and cuts it to at most maxRunes runes.
func ForLog(s string, maxRunes int) string {
	out, _ := RedactPII(s)
	runes := []rune(out)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return out
	}
	return string(runes[:maxRunes]) + "…"
}
