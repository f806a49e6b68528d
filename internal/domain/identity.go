// Package domain contains the meeting-core entities. Entities carry data and
// their own small invariants; synchronization is the owning component's job.
package domain

import (
	"errors"
)

const MaxDisplayNameLen = 64

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type (
	UserID    string
	TenantID  string
	MeetingID string
)

// Role is the platform-level role the token verifier reports for a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Identity is the verified subject behind a connection. Token issuance belongs
// to the platform; this core only ever consumes the verified result.
type Identity struct {
	UserID      UserID   `json:"user_id"`
	TenantID    TenantID `json:"tenant_id"`
	DisplayName string   `json:"display_name"`
	Role        Role     `json:"role"`
}

func (id Identity) Validate() error {
	if id.DisplayName == "" {
		return ErrDisplayNameEmpty
	}
	if len(id.DisplayName) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
