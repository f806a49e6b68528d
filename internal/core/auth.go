package core

import (
	"context"
	"errors"

	"github.com/campushub/meetcore/internal/domain"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
	ErrUserUnknown  = errors.New("user unknown")
)

// TokenVerifier checks a platform-issued access token. Issuance is the
// platform's business; this core only consumes the verified identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// UserDirectory resolves user profiles from the platform.
type UserDirectory interface {
	GetUser(ctx context.Context, id domain.UserID) (*domain.Identity, error)
}
