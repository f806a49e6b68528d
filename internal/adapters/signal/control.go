package signal

import (
	"context"
	"encoding/json"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

type mediaStatusRequest struct {
	MeetingID    string `json:"meeting_id" validate:"required"`
	AudioEnabled *bool  `json:"audio_enabled" validate:"required"`
	VideoEnabled *bool  `json:"video_enabled" validate:"required"`
	ScreenShare  bool   `json:"screen_sharing"`
}

type qualityReportRequest struct {
	MeetingID string `json:"meeting_id" validate:"required"`
	Quality   string `json:"quality" validate:"required,oneof=poor fair good excellent"`
}

type hostTargetRequest struct {
	MeetingID     string `json:"meeting_id" validate:"required"`
	ParticipantID string `json:"participant_id" validate:"required"`
}

// spotlightRequest tolerates an empty participant id: that clears the
// spotlight.
type spotlightRequest struct {
	MeetingID     string `json:"meeting_id" validate:"required"`
	ParticipantID string `json:"participant_id"`
}

type recordingRequest struct {
	MeetingID string `json:"meeting_id" validate:"required"`
}

// handleMediaStatus applies the client's full local media report. The ack is
// the media-status-changed broadcast, which includes the reporter.
func (ctl *Controller) handleMediaStatus(ctx context.Context, s *session, payload json.RawMessage) {
	var req mediaStatusRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvMediaStatus, err)
		return
	}
	pid, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvMediaStatus, err)
		return
	}

	state := domain.MediaState{
		AudioEnabled:  *req.AudioEnabled,
		VideoEnabled:  *req.VideoEnabled,
		ScreenSharing: req.ScreenShare,
	}
	if err := ctl.rooms.UpdateMediaStatus(ctx, domain.MeetingID(req.MeetingID), domain.ParticipantID(pid), state); err != nil {
		ctl.fail(s, core.EvMediaStatus, err)
	}
}

// handleQualityReport samples a connection quality report, fire-and-forget.
func (ctl *Controller) handleQualityReport(ctx context.Context, s *session, payload json.RawMessage) {
	var req qualityReportRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvQualityReport, err)
		return
	}
	pid, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvQualityReport, err)
		return
	}
	if err := ctl.rooms.ReportQuality(ctx, domain.MeetingID(req.MeetingID), domain.ParticipantID(pid), domain.ConnectionQuality(req.Quality)); err != nil {
		ctl.fail(s, core.EvQualityReport, err)
	}
}

func (ctl *Controller) handleMute(ctx context.Context, s *session, payload json.RawMessage) {
	var req hostTargetRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvMuteParticipant, err)
		return
	}
	actor, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvMuteParticipant, err)
		return
	}
	if err := ctl.rooms.Mute(ctx, domain.MeetingID(req.MeetingID), domain.ParticipantID(actor), domain.ParticipantID(req.ParticipantID)); err != nil {
		ctl.fail(s, core.EvMuteParticipant, err)
	}
}

func (ctl *Controller) handleKick(ctx context.Context, s *session, payload json.RawMessage) {
	var req hostTargetRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvKickParticipant, err)
		return
	}
	actor, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvKickParticipant, err)
		return
	}
	if err := ctl.rooms.Kick(ctx, domain.MeetingID(req.MeetingID), domain.ParticipantID(actor), domain.ParticipantID(req.ParticipantID)); err != nil {
		ctl.fail(s, core.EvKickParticipant, err)
	}
}

func (ctl *Controller) handleSpotlight(ctx context.Context, s *session, payload json.RawMessage) {
	var req spotlightRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvSpotlightParticipant, err)
		return
	}
	actor, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvSpotlightParticipant, err)
		return
	}
	if err := ctl.rooms.Spotlight(ctx, domain.MeetingID(req.MeetingID), domain.ParticipantID(actor), domain.ParticipantID(req.ParticipantID)); err != nil {
		ctl.fail(s, core.EvSpotlightParticipant, err)
	}
}

// Recording controls ack through the room-wide recording event broadcasts.
func (ctl *Controller) handleStartRecording(ctx context.Context, s *session, payload json.RawMessage) {
	ctl.recordingOp(ctx, s, payload, core.EvStartRecording, ctl.rooms.StartRecording)
}

func (ctl *Controller) handleStopRecording(ctx context.Context, s *session, payload json.RawMessage) {
	ctl.recordingOp(ctx, s, payload, core.EvStopRecording, ctl.rooms.StopRecording)
}

func (ctl *Controller) handlePauseRecording(ctx context.Context, s *session, payload json.RawMessage) {
	ctl.recordingOp(ctx, s, payload, core.EvPauseRecording, ctl.rooms.PauseRecording)
}

func (ctl *Controller) handleResumeRecording(ctx context.Context, s *session, payload json.RawMessage) {
	ctl.recordingOp(ctx, s, payload, core.EvResumeRecording, ctl.rooms.ResumeRecording)
}

func (ctl *Controller) recordingOp(
	ctx context.Context,
	s *session,
	payload json.RawMessage,
	event string,
	op func(context.Context, domain.MeetingID, domain.ParticipantID) (*domain.Recording, error),
) {
	var req recordingRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, event, err)
		return
	}
	actor, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, event, err)
		return
	}
	if _, err := op(ctx, domain.MeetingID(req.MeetingID), domain.ParticipantID(actor)); err != nil {
		ctl.fail(s, event, err)
	}
}
