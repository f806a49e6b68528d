package core

import (
	"errors"
	"fmt"
)

// Code is a named, client-facing rejection reason. Codes are stable wire
// contract; messages are free text.
type Code string

const (
	CodeNotFound        Code = "not_found"
	CodeAccessDenied    Code = "access_denied"
	CodeMeetingEnded    Code = "meeting_ended"
	CodeRoomFull        Code = "room_full"
	CodeNotInRoom       Code = "not_in_room"
	CodeNotHost         Code = "not_host"
	CodeBadPayload      Code = "bad_payload"
	CodeRateLimited     Code = "rate_limited"
	CodeChatDisabled    Code = "chat_disabled"
	CodeFeatureDisabled Code = "feature_disabled"
	CodeUnauthorized    Code = "unauthorized"

	CodeSFUUnavailable     Code = "sfu_unavailable"
	CodeRouterNotFound     Code = "router_not_found"
	CodeTransportNotFound  Code = "transport_not_found"
	CodeProducerNotFound   Code = "producer_not_found"
	CodeConsumerNotFound   Code = "consumer_not_found"
	CodeIncompatibleCaps   Code = "incompatible_capabilities"
	CodeInvalidLayer       Code = "invalid_layer"
	CodeInvalidDirection   Code = "invalid_direction"
	CodeDuplicateProducer  Code = "duplicate_producer"
	CodeRecordingActive    Code = "recording_active"
	CodeRecordingNotActive Code = "recording_not_active"
	CodeInternal           Code = "internal_error"
)

// Rejection is an error the client caused given current state: reply with the
// code, mutate nothing, let the client retry after fixing the cause.
type Rejection struct {
	Code    Code
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return string(r.Code)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Reject builds a Rejection with an optional formatted message.
func Reject(code Code, format string, args ...any) *Rejection {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Rejection{Code: code, Message: msg}
}

// CodeOf extracts the rejection code from err, or internal_error for anything
// that is not a Rejection.
func CodeOf(err error) Code {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Code
	}
	return CodeInternal
}
