// Package auth verifies platform-issued access tokens and resolves user
// profiles. Token issuance lives in the platform's identity service; this
// package only consumes its output.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

// tokenClaims is the payload segment of a compact token.
type tokenClaims struct {
	UserID      string `json:"user_id"`
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	ExpiresAt   int64  `json:"exp,omitempty"`
}

// HMACVerifier checks compact tokens of the form
// base64url(payload_json) "." base64url(hmac_sha256(payload_segment)).
type HMACVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), now: time.Now}
}

func (v *HMACVerifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	payload, sig, ok := strings.Cut(token, ".")
	if !ok || payload == "" || sig == "" {
		return domain.Identity{}, core.ErrTokenInvalid
	}
	rawSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return domain.Identity{}, core.ErrTokenInvalid
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	if !hmac.Equal(rawSig, mac.Sum(nil)) {
		return domain.Identity{}, core.ErrTokenInvalid
	}

	rawPayload, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return domain.Identity{}, core.ErrTokenInvalid
	}
	var claims tokenClaims
	if err := json.Unmarshal(rawPayload, &claims); err != nil {
		return domain.Identity{}, core.ErrTokenInvalid
	}
	if claims.ExpiresAt > 0 && v.now().Unix() > claims.ExpiresAt {
		return domain.Identity{}, core.ErrTokenExpired
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return domain.Identity{}, core.ErrTokenInvalid
	}

	id := domain.Identity{
		UserID:      domain.UserID(claims.UserID),
		TenantID:    domain.TenantID(claims.TenantID),
		DisplayName: claims.DisplayName,
		Role:        domain.Role(claims.Role),
	}
	if err := id.Validate(); err != nil {
		return domain.Identity{}, core.ErrTokenInvalid
	}
	return id, nil
}

// Sign mints a compact token for the identity. Production tokens come from
// the platform; this exists for dev runs and tests.
func Sign(secret string, id domain.Identity, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		UserID:      string(id.UserID),
		TenantID:    string(id.TenantID),
		DisplayName: id.DisplayName,
		Role:        string(id.Role),
	}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = expiresAt.Unix()
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
