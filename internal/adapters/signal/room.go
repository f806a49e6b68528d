package signal

import (
	"context"
	"encoding/json"

	"github.com/campushub/meetcore/internal/app/rooms"
	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

type joinRoomRequest struct {
	MeetingID string `json:"meeting_id" validate:"required"`
}

type leaveRoomRequest struct {
	MeetingID string `json:"meeting_id" validate:"required"`
}

// handleJoin puts the connection into a room. A connection sits in at most
// one room at a time, so joining a second meeting leaves the first.
func (ctl *Controller) handleJoin(ctx context.Context, s *session, payload json.RawMessage) {
	var req joinRoomRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvJoinRoom, err)
		return
	}

	target := domain.MeetingID(req.MeetingID)
	if cur, pid, ok := s.room(); ok && cur != target {
		ctl.rooms.Leave(ctx, cur, pid, rooms.ReasonLeft)
		s.clearRoom()
	}

	res, err := ctl.rooms.Join(ctx, s.id, s.identity, target)
	if err != nil {
		ctl.fail(s, core.EvJoinRoom, err)
		return
	}
	s.setRoom(target, res.Participant.ID)
	ctl.reply(s, core.EvRoomJoined, res)
}

// handleLeave removes the connection from its room. The leaver's ack is its
// own participant-left event; the rest of the room gets the broadcast copy.
func (ctl *Controller) handleLeave(ctx context.Context, s *session, payload json.RawMessage) {
	var req leaveRoomRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvLeaveRoom, err)
		return
	}

	meeting, pid, ok := s.room()
	if !ok || string(meeting) != req.MeetingID {
		ctl.fail(s, core.EvLeaveRoom, core.Reject(core.CodeNotInRoom, "not in meeting %s", req.MeetingID))
		return
	}

	p, _ := ctl.rooms.Participant(meeting, pid)
	ctl.rooms.Leave(ctx, meeting, pid, rooms.ReasonLeft)
	s.clearRoom()
	ctl.reply(s, core.EvParticipantLeft, rooms.ParticipantLeftEvent{
		ParticipantID: pid,
		UserID:        s.identity.UserID,
		DisplayName:   p.DisplayName,
		Reason:        rooms.ReasonLeft,
	})
}
