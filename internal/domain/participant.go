package domain

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantID is a process-unique join-session id, never the raw user id, so
// one user can hold several concurrent sessions in the same room.
type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

type ConnStatus string

const (
	ConnConnected    ConnStatus = "connected"
	ConnDisconnected ConnStatus = "disconnected"
)

type ConnectionQuality string

const (
	QualityPoor      ConnectionQuality = "poor"
	QualityFair      ConnectionQuality = "fair"
	QualityGood      ConnectionQuality = "good"
	QualityExcellent ConnectionQuality = "excellent"
)

// Score maps a quality report onto 1..4 for the meeting's running average.
// Unknown values score zero and are not sampled.
func (q ConnectionQuality) Score() int {
	switch q {
	case QualityPoor:
		return 1
	case QualityFair:
		return 2
	case QualityGood:
		return 3
	case QualityExcellent:
		return 4
	}
	return 0
}

// Permissions a participant holds inside one meeting.
type Permissions struct {
	CanShareScreen bool `json:"can_share_screen"`
	CanUseChat     bool `json:"can_use_chat"`
	IsModerator    bool `json:"is_moderator"`
	IsHost         bool `json:"is_host"`
}

// HostPermissions is what a meeting creator gets on join.
func HostPermissions() Permissions {
	return Permissions{CanShareScreen: true, CanUseChat: true, IsModerator: true, IsHost: true}
}

// AttendeePermissions is the default for everybody else.
func AttendeePermissions() Permissions {
	return Permissions{CanShareScreen: true, CanUseChat: true}
}

// MediaState mirrors what the client reports about its local media.
type MediaState struct {
	VideoEnabled  bool `json:"video_enabled"`
	AudioEnabled  bool `json:"audio_enabled"`
	ScreenSharing bool `json:"screen_sharing"`
	MutedByHost   bool `json:"muted_by_host"`
}

// Participant is one (meeting, user, join-session) record. Live participants
// are held by the session manager; soft-closed ones persist for analytics.
type Participant struct {
	ID           ParticipantID     `json:"id"`
	MeetingID    MeetingID         `json:"meeting_id"`
	UserID       UserID            `json:"user_id"`
	DisplayName  string            `json:"display_name"`
	ConnectionID string            `json:"connection_id"`
	Status       ConnStatus        `json:"status"`
	Permissions  Permissions       `json:"permissions"`
	Media        MediaState        `json:"media"`
	Quality      ConnectionQuality `json:"quality"`
	JoinedAt     time.Time         `json:"joined_at"`
	LeftAt       *time.Time        `json:"left_at,omitempty"`
}

// NewParticipant creates a connected participant; the creator of the meeting
// becomes host, everyone else an attendee.
func NewParticipant(meetingID MeetingID, id Identity, connID string, isCreator bool) *Participant {
	perms := AttendeePermissions()
	if isCreator {
		perms = HostPermissions()
	}
	return &Participant{
		ID:           NewParticipantID(),
		MeetingID:    meetingID,
		UserID:       id.UserID,
		DisplayName:  id.DisplayName,
		ConnectionID: connID,
		Status:       ConnConnected,
		Permissions:  perms,
		Quality:      QualityGood,
		JoinedAt:     time.Now().UTC(),
	}
}

// Close soft-closes the record. LeftAt is set exactly once.
func (p *Participant) Close(now time.Time) {
	if p.LeftAt != nil {
		return
	}
	t := now.UTC()
	if t.Before(p.JoinedAt) {
		t = p.JoinedAt
	}
	p.LeftAt = &t
	p.Status = ConnDisconnected
}

// Closed reports whether the join-session was already soft-closed.
func (p *Participant) Closed() bool { return p.LeftAt != nil }
