package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/domain"
)

// Redis key prefixes shared by every instance of the service.
const (
	presenceKeyPrefix = "presence:"
	roomKeyPrefix     = "room_online:"
	unreadKeyPrefix   = "unread:"
	typingKeyPrefix   = "typing:"
)

// RedisStore keeps presence in Redis so that capacity checks and online
// lookups agree across instances. Connection counts live in a hash keyed by
// instance id, room membership in a set per meeting.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Ping verifies the Redis connection at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func presenceKey(user domain.UserID) string   { return presenceKeyPrefix + string(user) }
func roomKey(meeting domain.MeetingID) string { return roomKeyPrefix + string(meeting) }
func typingKey(m domain.MeetingID, u domain.UserID) string {
	return fmt.Sprintf("%s%s:%s", typingKeyPrefix, m, u)
}
func unreadKey(u domain.UserID, m domain.MeetingID) string {
	return fmt.Sprintf("%s%s:%s", unreadKeyPrefix, u, m)
}

func (s *RedisStore) SetOnline(ctx context.Context, user domain.UserID, instanceID string) (int64, error) {
	key := presenceKey(user)
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, instanceID, 1)
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return s.totalConnections(ctx, key)
}

func (s *RedisStore) SetOffline(ctx context.Context, user domain.UserID, instanceID string) (int64, error) {
	key := presenceKey(user)
	n, err := s.rdb.HIncrBy(ctx, key, instanceID, -1).Result()
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		if err := s.rdb.HDel(ctx, key, instanceID).Err(); err != nil {
			log.Warn().Str("module", "presence.redis").Err(err).Msg("failed to drop empty instance field")
		}
	}
	return s.totalConnections(ctx, key)
}

func (s *RedisStore) totalConnections(ctx context.Context, key string) (int64, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, v := range fields {
		var n int64
		fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			total += n
		}
	}
	return total, nil
}

func (s *RedisStore) IsOnline(ctx context.Context, user domain.UserID) (bool, error) {
	total, err := s.totalConnections(ctx, presenceKey(user))
	if err != nil {
		return false, err
	}
	return total > 0, nil
}

func (s *RedisStore) AddRoomMember(ctx context.Context, meeting domain.MeetingID, user domain.UserID) (int64, bool, error) {
	key := roomKey(meeting)
	pipe := s.rdb.TxPipeline()
	add := pipe.SAdd(ctx, key, string(user))
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, err
	}
	return card.Val(), add.Val() > 0, nil
}

func (s *RedisStore) RemoveRoomMember(ctx context.Context, meeting domain.MeetingID, user domain.UserID) error {
	return s.rdb.SRem(ctx, roomKey(meeting), string(user)).Err()
}

func (s *RedisStore) RoomOnlineUsers(ctx context.Context, meeting domain.MeetingID) ([]domain.UserID, error) {
	members, err := s.rdb.SMembers(ctx, roomKey(meeting)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		out = append(out, domain.UserID(m))
	}
	return out, nil
}

func (s *RedisStore) RoomOnlineCount(ctx context.Context, meeting domain.MeetingID) (int64, error) {
	return s.rdb.SCard(ctx, roomKey(meeting)).Result()
}

func (s *RedisStore) ClearRoom(ctx context.Context, meeting domain.MeetingID) error {
	return s.rdb.Del(ctx, roomKey(meeting)).Err()
}

func (s *RedisStore) IncrUnread(ctx context.Context, user domain.UserID, meeting domain.MeetingID) (int64, error) {
	return s.rdb.Incr(ctx, unreadKey(user, meeting)).Result()
}

func (s *RedisStore) ClearUnread(ctx context.Context, user domain.UserID, meeting domain.MeetingID) error {
	return s.rdb.Del(ctx, unreadKey(user, meeting)).Err()
}

func (s *RedisStore) UnreadCount(ctx context.Context, user domain.UserID, meeting domain.MeetingID) (int64, error) {
	n, err := s.rdb.Get(ctx, unreadKey(user, meeting)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) SetTyping(ctx context.Context, meeting domain.MeetingID, user domain.UserID, isTyping bool, ttl time.Duration) error {
	key := typingKey(meeting, user)
	if !isTyping {
		return s.rdb.Del(ctx, key).Err()
	}
	return s.rdb.Set(ctx, key, "1", ttl).Err()
}

func (s *RedisStore) TypingUsers(ctx context.Context, meeting domain.MeetingID) ([]domain.UserID, error) {
	pattern := typingKeyPrefix + string(meeting) + ":*"
	var out []domain.UserID
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	prefixLen := len(typingKeyPrefix) + len(meeting) + 1
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) > prefixLen {
			out = append(out, domain.UserID(key[prefixLen:]))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
