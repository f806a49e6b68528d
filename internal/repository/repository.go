// Package repository persists the records this core owns: meetings,
// participants, chat messages and recordings. The in-memory implementation
// backs tests and single-node dev runs; Postgres backs everything else.
package repository

import (
	"context"
	"errors"

	"github.com/campushub/meetcore/internal/domain"
)

var (
	ErrMeetingNotFound     = errors.New("meeting not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrRecordingNotFound   = errors.New("recording not found")
)

type MeetingRepository interface {
	Create(ctx context.Context, m *domain.Meeting) error
	GetByID(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error)
	Update(ctx context.Context, m *domain.Meeting) error
	ListByTenant(ctx context.Context, tenant domain.TenantID) ([]*domain.Meeting, error)
}

type ParticipantRepository interface {
	Create(ctx context.Context, p *domain.Participant) error
	Update(ctx context.Context, p *domain.Participant) error
	GetByID(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error)
	ListByMeeting(ctx context.Context, meeting domain.MeetingID) ([]*domain.Participant, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *domain.ChatMessage) error
	Update(ctx context.Context, m *domain.ChatMessage) error
	GetByID(ctx context.Context, id string) (*domain.ChatMessage, error)
	ListByMeeting(ctx context.Context, meeting domain.MeetingID, limit int) ([]*domain.ChatMessage, error)
}

type RecordingRepository interface {
	Create(ctx context.Context, r *domain.Recording) error
	Update(ctx context.Context, r *domain.Recording) error
	ActiveByMeeting(ctx context.Context, meeting domain.MeetingID) (*domain.Recording, error)
}

// Store bundles the four repositories one backend provides.
type Store struct {
	Meetings     MeetingRepository
	Participants ParticipantRepository
	Messages     MessageRepository
	Recordings   RecordingRepository
}
