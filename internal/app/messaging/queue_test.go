package messaging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campushub/meetcore/internal/domain"
)

func queuedMsg(id string) *domain.ChatMessage {
	return &domain.ChatMessage{ID: id, Content: "hello"}
}

func TestOfflineQueueFlushInOrder(t *testing.T) {
	q := NewOfflineQueue(10)
	for i := 0; i < 3; i++ {
		q.Enqueue("u1", queuedMsg(fmt.Sprintf("m%d", i)), "meet-1")
	}
	require.Equal(t, 3, q.Len("u1"))

	got := q.Flush("u1")
	require.Len(t, got, 3)
	for i, qm := range got {
		require.Equal(t, fmt.Sprintf("m%d", i), qm.Message.ID)
		require.Equal(t, domain.MeetingID("meet-1"), qm.Meeting)
		require.False(t, qm.QueuedAt.IsZero())
	}

	require.Zero(t, q.Len("u1"))
	require.Nil(t, q.Flush("u1"), "second flush finds nothing")
}

func TestOfflineQueueEvictsOldestAtCapacity(t *testing.T) {
	q := NewOfflineQueue(100)
	for i := 0; i <= 100; i++ {
		q.Enqueue("u1", queuedMsg(fmt.Sprintf("m%d", i)), "meet-1")
	}
	require.Equal(t, 100, q.Len("u1"))

	got := q.Flush("u1")
	require.Equal(t, "m1", got[0].Message.ID, "m0 was evicted to admit m100")
	require.Equal(t, "m100", got[len(got)-1].Message.ID)
}

func TestOfflineQueuePerUserIsolation(t *testing.T) {
	q := NewOfflineQueue(0) // zero falls back to the default cap
	q.Enqueue("u1", queuedMsg("a"), "meet-1")
	q.Enqueue("u2", queuedMsg("b"), "meet-2")

	require.Len(t, q.Flush("u1"), 1)
	require.Equal(t, 1, q.Len("u2"), "flushing one user leaves the other queued")
}
