package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/app"
	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
	"github.com/campushub/meetcore/internal/repository"
)

// TypingTTL is how long a typing flag lives without a refresh.
const TypingTTL = 5 * time.Second

// RoomDirectory is the slice of room state the delivery path needs: who ever
// joined the meeting (the chat roster) and who among them holds host powers.
type RoomDirectory interface {
	Roster(meeting domain.MeetingID) []domain.UserID
	Hosts(meeting domain.MeetingID) []domain.UserID
	IsMember(meeting domain.MeetingID, user domain.UserID) bool
}

// MessageEvent is the wire payload for a live chat delivery.
type MessageEvent struct {
	Message  *domain.ChatMessage `json:"message"`
	Replayed bool                `json:"replayed"`
}

// PendingBatch is the wire payload replaying queued messages on reconnect.
type PendingBatch struct {
	Messages []QueuedMessage `json:"messages"`
	Replayed bool            `json:"replayed"`
}

// TypingEvent is the wire payload for typing indicator changes.
type TypingEvent struct {
	MeetingID   domain.MeetingID `json:"meeting_id"`
	UserID      domain.UserID    `json:"user_id"`
	DisplayName string           `json:"display_name"`
	IsTyping    bool             `json:"is_typing"`
}

// SeenEvent is the wire payload for read receipts.
type SeenEvent struct {
	MeetingID  domain.MeetingID `json:"meeting_id"`
	MessageIDs []string         `json:"message_ids"`
	UserID     domain.UserID    `json:"user_id"`
}

// Delivery routes chat between room members: persist first, then fan out to
// everyone present, queue plus unread-bump for everyone who is not.
type Delivery struct {
	reg      *app.Registry
	bc       *app.Broadcaster
	presence core.PresenceStore
	queue    *OfflineQueue
	store    *repository.Store
	rooms    RoomDirectory
}

func NewDelivery(reg *app.Registry, bc *app.Broadcaster, presence core.PresenceStore, queue *OfflineQueue, store *repository.Store, rooms RoomDirectory) *Delivery {
	return &Delivery{reg: reg, bc: bc, presence: presence, queue: queue, store: store, rooms: rooms}
}

// Send persists and delivers one chat message from a live participant.
func (d *Delivery) Send(ctx context.Context, meetingID domain.MeetingID, sender *domain.Participant, content string, rt domain.RecipientType, recipientID domain.UserID) (*domain.ChatMessage, error) {
	meeting, err := d.store.Meetings.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			return nil, core.Reject(core.CodeNotFound, "meeting %s not found", meetingID)
		}
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	if meeting.Terminal() {
		return nil, core.Reject(core.CodeMeetingEnded, "meeting %s is %s", meetingID, meeting.Status)
	}
	if !meeting.Features.Chat {
		return nil, core.Reject(core.CodeChatDisabled, "chat is disabled for this meeting")
	}
	if !sender.Permissions.CanUseChat {
		return nil, core.Reject(core.CodeAccessDenied, "chat permission revoked")
	}
	if rt == domain.RecipientPrivate && !d.rooms.IsMember(meetingID, recipientID) {
		return nil, core.Reject(core.CodeNotFound, "recipient is not in this meeting")
	}

	msg, err := domain.NewChatMessage(meetingID, sender, content, rt, recipientID)
	if err != nil {
		return nil, core.Reject(core.CodeBadPayload, "%s", err.Error())
	}
	if err := d.store.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	meeting.RecordChat()
	if err := d.store.Meetings.Update(ctx, meeting); err != nil {
		log.Warn().Str("module", "messaging.delivery").Str("meeting", string(meetingID)).Err(err).Msg("chat counter update failed")
	}

	recipients := d.recipientsFor(meetingID, msg)
	event := MessageEvent{Message: msg, Replayed: false}

	switch rt {
	case domain.RecipientAll:
		d.bc.ToRoom(ctx, meetingID, recipients, "", core.EvNewMessage, event)
	default:
		for _, user := range recipients {
			d.bc.ToUser(ctx, user, core.EvNewMessage, event)
		}
	}

	for _, user := range recipients {
		if user == sender.UserID {
			continue
		}
		online, err := d.presence.IsOnline(ctx, user)
		if err != nil {
			log.Warn().Str("module", "messaging.delivery").Str("user", string(user)).Err(err).Msg("presence lookup failed, assuming online")
			continue
		}
		if online {
			continue
		}
		d.queue.Enqueue(user, msg, meetingID)
		if _, err := d.presence.IncrUnread(ctx, user, meetingID); err != nil {
			log.Warn().Str("module", "messaging.delivery").Str("user", string(user)).Err(err).Msg("unread increment failed")
		}
	}

	return msg, nil
}

// recipientsFor resolves the target user set. The sender is always included
// so their other devices mirror the conversation.
func (d *Delivery) recipientsFor(meetingID domain.MeetingID, msg *domain.ChatMessage) []domain.UserID {
	switch msg.Recipient {
	case domain.RecipientPrivate:
		if msg.RecipientID == msg.SenderID {
			return []domain.UserID{msg.SenderID}
		}
		return []domain.UserID{msg.RecipientID, msg.SenderID}
	case domain.RecipientHost:
		hosts := d.rooms.Hosts(meetingID)
		for _, h := range hosts {
			if h == msg.SenderID {
				return hosts
			}
		}
		return append(hosts, msg.SenderID)
	default:
		return d.rooms.Roster(meetingID)
	}
}

// FlushPending replays everything queued for the user to the connection that
// just came up, in original order and in one batch.
func (d *Delivery) FlushPending(ctx context.Context, user domain.UserID, conn core.ConnectionID) int {
	batch := d.queue.Flush(user)
	if len(batch) == 0 {
		return 0
	}
	payload := PendingBatch{Messages: batch, Replayed: true}
	if err := d.reg.SendTo(conn, core.EvPendingMessages, payload); err != nil {
		log.Warn().Str("module", "messaging.delivery").Str("user", string(user)).Int("count", len(batch)).Err(err).Msg("pending flush dropped")
	}
	log.Info().Str("module", "messaging.delivery").Str("user", string(user)).Int("count", len(batch)).Msg("pending messages flushed")
	return len(batch)
}

// SetTyping refreshes the shared typing flag and tells the rest of the room.
func (d *Delivery) SetTyping(ctx context.Context, meetingID domain.MeetingID, from *domain.Participant, isTyping bool) error {
	if err := d.presence.SetTyping(ctx, meetingID, from.UserID, isTyping, TypingTTL); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	event := TypingEvent{
		MeetingID:   meetingID,
		UserID:      from.UserID,
		DisplayName: from.DisplayName,
		IsTyping:    isTyping,
	}
	d.bc.ToRoom(ctx, meetingID, d.rooms.Roster(meetingID), from.UserID, core.EvUserTyping, event)
	return nil
}

// MarkSeen records read receipts for the listed messages, clears the reader's
// unread counter for the room and notifies the room.
func (d *Delivery) MarkSeen(ctx context.Context, meetingID domain.MeetingID, reader domain.UserID, messageIDs []string) error {
	seen := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		msg, err := d.store.Messages.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrMessageNotFound) {
				continue
			}
			return fmt.Errorf("load message %s: %w", id, err)
		}
		if msg.MeetingID != meetingID {
			continue
		}
		if !msg.MarkSeen(reader) {
			continue
		}
		if err := d.store.Messages.Update(ctx, msg); err != nil {
			return fmt.Errorf("update message %s: %w", id, err)
		}
		seen = append(seen, id)
	}
	if err := d.presence.ClearUnread(ctx, reader, meetingID); err != nil {
		log.Warn().Str("module", "messaging.delivery").Str("user", string(reader)).Err(err).Msg("unread clear failed")
	}
	if len(seen) == 0 {
		return nil
	}
	event := SeenEvent{MeetingID: meetingID, MessageIDs: seen, UserID: reader}
	d.bc.ToRoom(ctx, meetingID, d.rooms.Roster(meetingID), "", core.EvMessagesSeen, event)
	return nil
}

// History returns the most recent persisted messages for a room.
func (d *Delivery) History(ctx context.Context, meetingID domain.MeetingID, limit int) ([]*domain.ChatMessage, error) {
	return d.store.Messages.ListByMeeting(ctx, meetingID, limit)
}
