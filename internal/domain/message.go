package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxMessageLen = 4000

var (
	ErrMessageEmpty   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
	ErrBadRecipient   = errors.New("unknown recipient type")
)

// RecipientType selects chat routing: everyone in the room, one user, or the
// host/moderator set.
type RecipientType string

const (
	RecipientAll     RecipientType = "all"
	RecipientPrivate RecipientType = "private"
	RecipientHost    RecipientType = "host"
)

// ChatMessage is the persisted record of one chat send.
type ChatMessage struct {
	ID          string        `json:"id"`
	MeetingID   MeetingID     `json:"meeting_id"`
	SenderID    UserID        `json:"sender_id"`
	SenderName  string        `json:"sender_name"`
	Content     string        `json:"content"`
	Recipient   RecipientType `json:"recipient"`
	RecipientID UserID        `json:"recipient_id,omitempty"`
	SentAt      time.Time     `json:"sent_at"`
	SeenBy      []UserID      `json:"seen_by,omitempty"`
}

// NewChatMessage validates and builds a message. Content is trimmed; private
// messages require a recipient id.
func NewChatMessage(meetingID MeetingID, sender *Participant, content string, rt RecipientType, recipientID UserID) (*ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	if utf8.RuneCountInString(content) > MaxMessageLen {
		return nil, ErrMessageTooLong
	}
	switch rt {
	case RecipientAll, RecipientHost:
	case RecipientPrivate:
		if recipientID == "" {
			return nil, ErrBadRecipient
		}
	default:
		return nil, ErrBadRecipient
	}
	return &ChatMessage{
		ID:          uuid.NewString(),
		MeetingID:   meetingID,
		SenderID:    sender.UserID,
		SenderName:  sender.DisplayName,
		Content:     content,
		Recipient:   rt,
		RecipientID: recipientID,
		SentAt:      time.Now().UTC(),
	}, nil
}

// MarkSeen records a reader once, preserving first-seen order.
func (m *ChatMessage) MarkSeen(reader UserID) bool {
	for _, u := range m.SeenBy {
		if u == reader {
			return false
		}
	}
	m.SeenBy = append(m.SeenBy, reader)
	return true
}
