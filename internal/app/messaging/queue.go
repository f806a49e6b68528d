package messaging

import (
	"sync"
	"time"

	"github.com/campushub/meetcore/internal/domain"
)

// DefaultQueueCap bounds each user's pending queue.
const DefaultQueueCap = 100

// QueuedMessage is one chat message held for a user who was offline when it
// was sent.
type QueuedMessage struct {
	Message  *domain.ChatMessage `json:"message"`
	Meeting  domain.MeetingID    `json:"meeting_id"`
	QueuedAt time.Time           `json:"queued_at"`
}

// OfflineQueue holds bounded per-user FIFO queues of undelivered messages.
// When a queue is full the oldest entry is dropped to admit the new one.
type OfflineQueue struct {
	mu     sync.Mutex
	cap    int
	byUser map[domain.UserID][]QueuedMessage
}

func NewOfflineQueue(capacity int) *OfflineQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCap
	}
	return &OfflineQueue{
		cap:    capacity,
		byUser: make(map[domain.UserID][]QueuedMessage),
	}
}

// Enqueue appends for the user, evicting the oldest entry when at capacity.
func (q *OfflineQueue) Enqueue(user domain.UserID, msg *domain.ChatMessage, meeting domain.MeetingID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.byUser[user]
	if len(list) >= q.cap {
		list = list[1:]
	}
	list = append(list, QueuedMessage{Message: msg, Meeting: meeting, QueuedAt: time.Now().UTC()})
	q.byUser[user] = list
}

// Flush drains the user's queue in original order and clears it in one step,
// so a concurrent enqueue lands in a fresh queue rather than a half-read one.
func (q *OfflineQueue) Flush(user domain.UserID) []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.byUser[user]
	if len(list) == 0 {
		return nil
	}
	delete(q.byUser, user)
	return list
}

// Len reports the user's queued message count.
func (q *OfflineQueue) Len(user domain.UserID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byUser[user])
}
