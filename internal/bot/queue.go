package bot

import "sync"

// chatQueues keeps one FIFO backlog per chat so a chat's messages are handled
// one at a time in arrival order while different chats run in parallel.
type chatQueues struct {
	mu      sync.Mutex
	pending map[int64][]Update
}

func newChatQueues() *chatQueues {
	return &chatQueues{pending: make(map[int64][]Update)}
}

// push queues u and reports whether the caller must start draining its chat.
func (q *chatQueues) push(u Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	backlog, active := q.pending[u.ChatID]
	q.pending[u.ChatID] = append(backlog, u)
	return !active
}

// next pops the chat's oldest update. Once the backlog is empty the chat is
// forgotten and ok is false, so the next push starts a new drain.
func (q *chatQueues) next(chatID int64) (u Update, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	backlog := q.pending[chatID]
	if len(backlog) == 0 {
		delete(q.pending, chatID)
		return Update{}, false
	}
	u = backlog[0]
	backlog[0] = Update{}
	q.pending[chatID] = backlog[1:]
	return u, true
}
