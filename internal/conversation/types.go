package conversation

import "errors"

// DefaultMemoryLimit is the number of turns retained per conversation when no
// explicit limit is configured.
const DefaultMemoryLimit = 20

// Role tags who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ID identifies a conversation. Platform identifiers (numeric chat IDs,
// usernames, websocket client keys) are carried as opaque strings.
type ID string

var ErrEmptyID = errors.New("conversation id is empty")

// Turn stores a single user or assistant message. Values are never mutated
// after creation; histories hold them by value.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// History is the chronological turn sequence of one conversation.
type History []Turn

// Clone returns a copy that shares no backing array with h.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Append returns a new history with t added at the end; h is left untouched.
func (h History) Append(t Turn) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, t)
}

// Trim keeps the most recent limit turns, dropping the oldest first.
// A non-positive limit falls back to DefaultMemoryLimit.
func Trim(h History, limit int) History {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	if len(h) <= limit {
		return h.Clone()
	}
	out := make(History, limit)
	copy(out, h[len(h)-limit:])
	return out
}
