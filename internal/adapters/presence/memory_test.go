package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushub/meetcore/internal/domain"
)

const (
	alice = domain.UserID("alice")
	bob   = domain.UserID("bob")
	study = domain.MeetingID("study-group")
)

func TestOnlineSessionsAreRefCountedPerInstance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	total, err := s.SetOnline(ctx, alice, "inst-a")
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	total, err = s.SetOnline(ctx, alice, "inst-a")
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	total, err = s.SetOnline(ctx, alice, "inst-b")
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	online, err := s.IsOnline(ctx, alice)
	require.NoError(t, err)
	require.True(t, online)

	total, err = s.SetOffline(ctx, alice, "inst-a")
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	total, err = s.SetOffline(ctx, alice, "inst-b")
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	total, err = s.SetOffline(ctx, alice, "inst-a")
	require.NoError(t, err)
	require.Zero(t, total)

	online, err = s.IsOnline(ctx, alice)
	require.NoError(t, err)
	require.False(t, online)
}

func TestSetOfflineForUnknownUserReportsZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	total, err := s.SetOffline(ctx, bob, "inst-a")
	require.NoError(t, err)
	require.Zero(t, total)

	online, err := s.IsOnline(ctx, bob)
	require.NoError(t, err)
	require.False(t, online)
}

func TestAddRoomMemberFlagsFirstJoinPerUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	count, added, err := s.AddRoomMember(ctx, study, alice)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.True(t, added)

	count, added, err = s.AddRoomMember(ctx, study, alice)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.False(t, added, "second device of the same user is not a new member")

	count, added, err = s.AddRoomMember(ctx, study, bob)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.True(t, added)
}

func TestRoomMembershipRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, _, err := s.AddRoomMember(ctx, study, alice)
	require.NoError(t, err)
	_, _, err = s.AddRoomMember(ctx, study, bob)
	require.NoError(t, err)

	require.NoError(t, s.RemoveRoomMember(ctx, study, alice))

	users, err := s.RoomOnlineUsers(ctx, study)
	require.NoError(t, err)
	require.Equal(t, []domain.UserID{bob}, users)

	count, err := s.RoomOnlineCount(ctx, study)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.NoError(t, s.ClearRoom(ctx, study))

	count, err = s.RoomOnlineCount(ctx, study)
	require.NoError(t, err)
	require.Zero(t, count)

	users, err = s.RoomOnlineUsers(ctx, study)
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestUnreadCountersArePerUserAndMeeting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	other := domain.MeetingID("exam-prep")

	n, err := s.IncrUnread(ctx, alice, study)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = s.IncrUnread(ctx, alice, study)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = s.IncrUnread(ctx, alice, other)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = s.UnreadCount(ctx, alice, study)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, s.ClearUnread(ctx, alice, study))

	n, err = s.UnreadCount(ctx, alice, study)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.UnreadCount(ctx, alice, other)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestTypingExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	require.NoError(t, s.SetTyping(ctx, study, alice, true, 4*time.Second))

	users, err := s.TypingUsers(ctx, study)
	require.NoError(t, err)
	require.Equal(t, []domain.UserID{alice}, users)

	now = now.Add(5 * time.Second)

	users, err = s.TypingUsers(ctx, study)
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestTypingStopClearsImmediately(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SetTyping(ctx, study, alice, true, time.Minute))
	require.NoError(t, s.SetTyping(ctx, study, alice, false, 0))

	users, err := s.TypingUsers(ctx, study)
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestTypingIsScopedToTheMeeting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	other := domain.MeetingID("exam-prep")

	require.NoError(t, s.SetTyping(ctx, study, alice, true, time.Minute))
	require.NoError(t, s.SetTyping(ctx, other, bob, true, time.Minute))

	users, err := s.TypingUsers(ctx, study)
	require.NoError(t, err)
	require.Equal(t, []domain.UserID{alice}, users)
}
