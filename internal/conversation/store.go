package conversation

import (
	"sync"
	"sync/atomic"
)

// Store keeps one bounded history per conversation, in process memory only.
// Entries are created lazily by the first Put and are never removed; Reset
// empties an entry in place. Each entry carries its own lock, so calls for
// different conversations never wait on each other.
type Store struct {
	limit   int
	entries sync.Map // ID -> *entry
	count   atomic.Int64
}

type entry struct {
	mu    sync.Mutex
	turns History
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Store{limit: limit}
}

// Limit reports the maximum number of turns kept per conversation.
func (s *Store) Limit() int { return s.limit }

// Get returns a copy of the stored history, or an empty history when the
// conversation has never been written.
func (s *Store) Get(id ID) History {
	v, ok := s.entries.Load(id)
	if !ok {
		return History{}
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turns.Clone()
}

// Put replaces the stored history with the most recent Limit() turns of h.
func (s *Store) Put(id ID, h History) {
	trimmed := Trim(h, s.limit)
	v, loaded := s.entries.LoadOrStore(id, &entry{})
	if !loaded {
		s.count.Add(1)
	}
	e := v.(*entry)
	e.mu.Lock()
	e.turns = trimmed
	e.mu.Unlock()
}

// Reset empties the history for id. Resetting an unknown conversation is a
// no-op and does not create an entry.
func (s *Store) Reset(id ID) {
	v, ok := s.entries.Load(id)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	e.turns = History{}
	e.mu.Unlock()
}

// Conversations reports how many conversations have an entry, including
// ones that were reset.
func (s *Store) Conversations() int {
	return int(s.count.Load())
}
