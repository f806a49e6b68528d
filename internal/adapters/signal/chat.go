package signal

import (
	"context"
	"encoding/json"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

type sendMessageRequest struct {
	MeetingID     string `json:"meeting_id" validate:"required"`
	Content       string `json:"content" validate:"required"`
	RecipientType string `json:"recipient_type" validate:"omitempty,oneof=all private host"`
	RecipientID   string `json:"recipient_id" validate:"required_if=RecipientType private"`
}

type typingRequest struct {
	MeetingID string `json:"meeting_id" validate:"required"`
	IsTyping  *bool  `json:"is_typing" validate:"required"`
}

type markSeenRequest struct {
	MeetingID  string   `json:"meeting_id" validate:"required"`
	MessageIDs []string `json:"message_ids" validate:"required,min=1"`
}

// handleSendMessage routes one chat message. The ack is the new-message
// fan-out itself: the sender is always among the recipients.
func (ctl *Controller) handleSendMessage(ctx context.Context, s *session, payload json.RawMessage) {
	var req sendMessageRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvSendMessage, err)
		return
	}
	pid, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvSendMessage, err)
		return
	}

	meeting := domain.MeetingID(req.MeetingID)
	// Permissions are re-read per message so a revoke applies immediately.
	p, ok := ctl.rooms.Participant(meeting, domain.ParticipantID(pid))
	if !ok {
		ctl.fail(s, core.EvSendMessage, core.Reject(core.CodeNotInRoom, "join the room first"))
		return
	}

	rt := domain.RecipientType(req.RecipientType)
	if rt == "" {
		rt = domain.RecipientAll
	}
	if _, err := ctl.delivery.Send(ctx, meeting, &p, req.Content, rt, domain.UserID(req.RecipientID)); err != nil {
		ctl.fail(s, core.EvSendMessage, err)
	}
}

// handleTyping refreshes the short-lived typing flag. No reply on success;
// the room sees user-typing.
func (ctl *Controller) handleTyping(ctx context.Context, s *session, payload json.RawMessage) {
	var req typingRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvTyping, err)
		return
	}
	pid, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvTyping, err)
		return
	}

	meeting := domain.MeetingID(req.MeetingID)
	p, ok := ctl.rooms.Participant(meeting, domain.ParticipantID(pid))
	if !ok {
		ctl.fail(s, core.EvTyping, core.Reject(core.CodeNotInRoom, "join the room first"))
		return
	}
	if err := ctl.delivery.SetTyping(ctx, meeting, &p, *req.IsTyping); err != nil {
		ctl.fail(s, core.EvTyping, err)
	}
}

// handleMarkSeen records read receipts. The reader's ack is the
// messages-seen broadcast, which includes the reader.
func (ctl *Controller) handleMarkSeen(ctx context.Context, s *session, payload json.RawMessage) {
	var req markSeenRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvMarkSeen, err)
		return
	}
	_, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvMarkSeen, err)
		return
	}
	if err := ctl.delivery.MarkSeen(ctx, domain.MeetingID(req.MeetingID), s.identity.UserID, req.MessageIDs); err != nil {
		ctl.fail(s, core.EvMarkSeen, err)
	}
}
