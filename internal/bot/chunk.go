package bot

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes is Telegram's per-message text limit.
const MaxMessageRunes = 4096

// SplitMessage cuts text into pieces of at most limit runes, preferring to
// break after a newline or space in the back half of each piece.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' || runes[i-1] == ' ' {
				cut = i
				break
			}
		}
		if part := strings.TrimRight(string(runes[:cut]), " \n"); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if tail := strings.TrimRight(string(runes), " \n"); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}
