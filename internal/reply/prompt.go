package reply

import (
	"strings"

	"github.com/ent0n29/gemini-relay/internal/conversation"
)

// DefaultPreamble is the instruction context sent alongside every prompt.
const DefaultPreamble = "You are a Telegram bot that answers users in a friendly way. " +
	"Keep replies short and clear, in Hinglish (Hindi mixed with simple English)."

// FormatPrompt renders history as "<role>: <content>" lines in chronological
// order.
func FormatPrompt(history conversation.History) string {
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}
