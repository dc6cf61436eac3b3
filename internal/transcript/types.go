package transcript

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/gemini-relay/internal/policy"
	"github.com/ent0n29/gemini-relay/internal/reply"
)

// Entry is one archived user or assistant message.
type Entry struct {
	ID             string    `json:"id"`
	TurnID         string    `json:"turn_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Outcome        string    `json:"outcome"`
	InMemory       bool      `json:"in_memory"`
	PIIRedacted    bool      `json:"pii_redacted"`
	CreatedAt      time.Time `json:"created_at"`
}

// Archive is an append-only operator log of exchanges. Nothing in it is
// ever loaded back into conversation memory.
type Archive interface {
	Record(ctx context.Context, ex reply.Exchange) error
	Recent(ctx context.Context, conversationID string, limit int) ([]Entry, error)
	Close() error
}

const defaultRecentLimit = 20

// entriesFor splits an exchange into its user and assistant rows, redacting
// PII from both.
func entriesFor(ex reply.Exchange) []Entry {
	at := ex.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	turnID := ex.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}

	out := make([]Entry, 0, 2)
	for i, t := range [2]struct {
		role, content string
	}{
		{string(ex.User.Role), ex.User.Content},
		{string(ex.Assistant.Role), ex.Assistant.Content},
	} {
		content, changed := policy.RedactPII(t.content)
		out = append(out, Entry{
			ID:             uuid.NewString(),
			TurnID:         turnID,
			ConversationID: string(ex.ConversationID),
			Role:           t.role,
			Content:        content,
			Outcome:        ex.Outcome.String(),
			InMemory:       ex.Stored,
			PIIRedacted:    changed,
			// keep user before assistant when timestamps collide
			CreatedAt: at.Add(time.Duration(i) * time.Microsecond),
		})
	}
	return out
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	return limit
}
