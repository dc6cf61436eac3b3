package reply

import (
	"context"
	"sync"

	"github.com/ent0n29/gemini-relay/internal/conversation"
)

// keyedLock serializes work per conversation. Waiting honors ctx, and slots
// are dropped once nobody holds or waits on them.
type keyedLock struct {
	mu    sync.Mutex
	slots map[conversation.ID]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[conversation.ID]*lockSlot)}
}

func (l *keyedLock) Lock(ctx context.Context, id conversation.ID) (unlock func(), err error) {
	l.mu.Lock()
	slot, ok := l.slots[id]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[id] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		// select picks randomly when ctx is already done and the slot is free
		if err := ctx.Err(); err != nil {
			<-slot.ch
			l.release(id, slot)
			return nil, err
		}
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(id, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(id, slot)
		return nil, ctx.Err()
	}
}

func (l *keyedLock) release(id conversation.ID, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *keyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
