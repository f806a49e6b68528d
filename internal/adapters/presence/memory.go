package presence

import (
	"context"
	"sync"
	"time"

	"github.com/campushub/meetcore/internal/domain"
)

// MemoryStore is the single-instance fallback used when Redis is not
// configured. It honors the same contract, including typing TTL expiry.
type MemoryStore struct {
	mu      sync.Mutex
	online  map[domain.UserID]map[string]int64
	rooms   map[domain.MeetingID]map[domain.UserID]struct{}
	unread  map[string]int64
	typing  map[string]time.Time
	nowFunc func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		online:  make(map[domain.UserID]map[string]int64),
		rooms:   make(map[domain.MeetingID]map[domain.UserID]struct{}),
		unread:  make(map[string]int64),
		typing:  make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

func (s *MemoryStore) SetOnline(_ context.Context, user domain.UserID, instanceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byInstance, ok := s.online[user]
	if !ok {
		byInstance = make(map[string]int64)
		s.online[user] = byInstance
	}
	byInstance[instanceID]++
	return s.totalLocked(user), nil
}

func (s *MemoryStore) SetOffline(_ context.Context, user domain.UserID, instanceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byInstance, ok := s.online[user]; ok {
		byInstance[instanceID]--
		if byInstance[instanceID] <= 0 {
			delete(byInstance, instanceID)
		}
		if len(byInstance) == 0 {
			delete(s.online, user)
		}
	}
	return s.totalLocked(user), nil
}

func (s *MemoryStore) totalLocked(user domain.UserID) int64 {
	var total int64
	for _, n := range s.online[user] {
		total += n
	}
	return total
}

func (s *MemoryStore) IsOnline(_ context.Context, user domain.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked(user) > 0, nil
}

func (s *MemoryStore) AddRoomMember(_ context.Context, meeting domain.MeetingID, user domain.UserID) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[meeting]
	if !ok {
		members = make(map[domain.UserID]struct{})
		s.rooms[meeting] = members
	}
	_, existed := members[user]
	members[user] = struct{}{}
	return int64(len(members)), !existed, nil
}

func (s *MemoryStore) RemoveRoomMember(_ context.Context, meeting domain.MeetingID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.rooms[meeting]; ok {
		delete(members, user)
		if len(members) == 0 {
			delete(s.rooms, meeting)
		}
	}
	return nil
}

func (s *MemoryStore) RoomOnlineUsers(_ context.Context, meeting domain.MeetingID) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.rooms[meeting]
	out := make([]domain.UserID, 0, len(members))
	for u := range members {
		out = append(out, u)
	}
	return out, nil
}

func (s *MemoryStore) RoomOnlineCount(_ context.Context, meeting domain.MeetingID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rooms[meeting])), nil
}

func (s *MemoryStore) ClearRoom(_ context.Context, meeting domain.MeetingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, meeting)
	return nil
}

func (s *MemoryStore) IncrUnread(_ context.Context, user domain.UserID, meeting domain.MeetingID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(user) + ":" + string(meeting)
	s.unread[key]++
	return s.unread[key], nil
}

func (s *MemoryStore) ClearUnread(_ context.Context, user domain.UserID, meeting domain.MeetingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unread, string(user)+":"+string(meeting))
	return nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, user domain.UserID, meeting domain.MeetingID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[string(user)+":"+string(meeting)], nil
}

func (s *MemoryStore) SetTyping(_ context.Context, meeting domain.MeetingID, user domain.UserID, isTyping bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(meeting) + ":" + string(user)
	if !isTyping {
		delete(s.typing, key)
		return nil
	}
	s.typing[key] = s.nowFunc().Add(ttl)
	return nil
}

func (s *MemoryStore) TypingUsers(_ context.Context, meeting domain.MeetingID) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	prefix := string(meeting) + ":"
	var out []domain.UserID
	for key, deadline := range s.typing {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if now.After(deadline) {
			delete(s.typing, key)
			continue
		}
		out = append(out, domain.UserID(key[len(prefix):]))
	}
	return out, nil
}
