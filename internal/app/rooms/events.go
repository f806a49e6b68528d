package rooms

import (
	"encoding/json"

	"github.com/campushub/meetcore/internal/domain"
)

// JoinResult is the room-joined reply: the joiner's own record, everyone
// currently in the room, the meeting, and the router capabilities (absent in
// degraded, media-less mode).
type JoinResult struct {
	Meeting         *domain.Meeting       `json:"meeting"`
	Participant     *domain.Participant   `json:"participant"`
	Participants    []*domain.Participant `json:"participants"`
	RTPCapabilities json.RawMessage       `json:"rtp_capabilities,omitempty"`
}

type ParticipantJoinedEvent struct {
	Participant *domain.Participant `json:"participant"`
}

type ParticipantLeftEvent struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	UserID        domain.UserID        `json:"user_id"`
	DisplayName   string               `json:"display_name"`
	Reason        string               `json:"reason"`
}

type ParticipantMutedEvent struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	By            domain.UserID        `json:"by"`
}

type ParticipantKickedEvent struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	UserID        domain.UserID        `json:"user_id"`
	By            domain.UserID        `json:"by"`
}

// SpotlightChangedEvent carries an empty ParticipantID when the spotlight was
// cleared.
type SpotlightChangedEvent struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	By            domain.UserID        `json:"by"`
}

type RecordingEvent struct {
	RecordingID string                 `json:"recording_id"`
	MeetingID   domain.MeetingID       `json:"meeting_id"`
	Status      domain.RecordingStatus `json:"status"`
	By          domain.UserID          `json:"by"`
}

type MediaStatusChangedEvent struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	UserID        domain.UserID        `json:"user_id"`
	Media         domain.MediaState    `json:"media"`
}

type NewProducerEvent struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	UserID        domain.UserID        `json:"user_id"`
	ProducerID    string               `json:"producer_id"`
	Kind          string               `json:"kind"`
}

type TransportNegotiateEvent struct {
	TransportID string          `json:"transport_id"`
	Params      json.RawMessage `json:"params"`
}

// Leave reasons carried on participant-left.
const (
	ReasonLeft         = "left"
	ReasonDisconnected = "disconnected"
	ReasonKicked       = "kicked"
)
