package transcript

import (
	"context"
	"sync"

	"github.com/ent0n29/gemini-relay/internal/reply"
)

// InMemoryArchive keeps entries in process memory for local runs.
type InMemoryArchive struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewInMemoryArchive() *InMemoryArchive {
	return &InMemoryArchive{entries: make(map[string][]Entry)}
}

func (a *InMemoryArchive) Record(_ context.Context, ex reply.Exchange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := string(ex.ConversationID)
	a.entries[id] = append(a.entries[id], entriesFor(ex)...)
	return nil
}

func (a *InMemoryArchive) Recent(_ context.Context, conversationID string, limit int) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	arr := a.entries[conversationID]
	if len(arr) == 0 {
		return nil, nil
	}
	limit = normalizeLimit(limit)
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Entry, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (a *InMemoryArchive) Close() error { return nil }
