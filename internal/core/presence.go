package core

import (
	"context"
	"time"

	"github.com/campushub/meetcore/internal/domain"
)

// PresenceStore is the shared, cross-instance record of who is online, who is
// in which room, typing flags and unread counters. All state here must be
// correct when several server processes run behind one load balancer, so
// implementations own atomicity; callers never coordinate with local locks.
type PresenceStore interface {
	// SetOnline records one live connection of a user on this instance and
	// returns the user's total connection count across instances.
	SetOnline(ctx context.Context, user domain.UserID, instanceID string) (int64, error)
	// SetOffline drops one connection; the user is offline at zero remaining.
	SetOffline(ctx context.Context, user domain.UserID, instanceID string) (int64, error)
	IsOnline(ctx context.Context, user domain.UserID) (bool, error)

	// AddRoomMember adds the user to the room's online set and returns the
	// set's new cardinality, the cross-instance capacity authority. added is
	// false when the user was already a member (another device), which tells
	// the caller whether a capacity rollback may remove the membership.
	AddRoomMember(ctx context.Context, meeting domain.MeetingID, user domain.UserID) (count int64, added bool, err error)
	RemoveRoomMember(ctx context.Context, meeting domain.MeetingID, user domain.UserID) error
	RoomOnlineUsers(ctx context.Context, meeting domain.MeetingID) ([]domain.UserID, error)
	RoomOnlineCount(ctx context.Context, meeting domain.MeetingID) (int64, error)
	ClearRoom(ctx context.Context, meeting domain.MeetingID) error

	IncrUnread(ctx context.Context, user domain.UserID, meeting domain.MeetingID) (int64, error)
	ClearUnread(ctx context.Context, user domain.UserID, meeting domain.MeetingID) error
	UnreadCount(ctx context.Context, user domain.UserID, meeting domain.MeetingID) (int64, error)

	// SetTyping flips the short-TTL typing flag; the store expires it on its
	// own when isTyping stops being refreshed.
	SetTyping(ctx context.Context, meeting domain.MeetingID, user domain.UserID, isTyping bool, ttl time.Duration) error
	TypingUsers(ctx context.Context, meeting domain.MeetingID) ([]domain.UserID, error)
}
