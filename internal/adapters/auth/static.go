package auth

import (
	"context"
	"sync"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

// StaticVerifier maps fixed token strings to identities. Dev and test use
// only.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]domain.Identity
}

func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{tokens: make(map[string]domain.Identity)}
}

func (s *StaticVerifier) Add(token string, id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = id
}

func (s *StaticVerifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	if !ok {
		return domain.Identity{}, core.ErrTokenInvalid
	}
	return id, nil
}

// StaticDirectory answers user lookups from a seeded map.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[domain.UserID]domain.Identity
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{users: make(map[domain.UserID]domain.Identity)}
}

func (d *StaticDirectory) Add(id domain.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id.UserID] = id
}

func (d *StaticDirectory) GetUser(ctx context.Context, userID domain.UserID) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.users[userID]
	if !ok {
		return nil, core.ErrUserUnknown
	}
	return &id, nil
}
