package signal

import (
	"context"
	"encoding/json"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

type createTransportRequest struct {
	MeetingID string `json:"meeting_id" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=send recv"`
}

type connectTransportRequest struct {
	TransportID    string          `json:"transport_id" validate:"required"`
	DTLSParameters json.RawMessage `json:"dtls_parameters" validate:"required"`
}

type produceRequest struct {
	MeetingID     string          `json:"meeting_id" validate:"required"`
	Kind          string          `json:"kind" validate:"required,oneof=audio video"`
	RTPParameters json.RawMessage `json:"rtp_parameters" validate:"required"`
}

type consumeRequest struct {
	MeetingID           string          `json:"meeting_id" validate:"required"`
	ProducerParticipant string          `json:"producer_participant_id" validate:"required"`
	Kind                string          `json:"kind" validate:"required,oneof=audio video"`
	RTPCapabilities     json.RawMessage `json:"rtp_capabilities" validate:"required"`
}

type consumerRequest struct {
	ConsumerID string `json:"consumer_id" validate:"required"`
}

// switchQualityRequest selects a spatial tier. With a consumer id it targets
// that consumer; without one it retargets every video consumer the session
// holds in the meeting.
type switchQualityRequest struct {
	MeetingID  string `json:"meeting_id" validate:"required"`
	ConsumerID string `json:"consumer_id"`
	Layer      *int   `json:"layer" validate:"required"`
}

type transportConnectedPayload struct {
	TransportID string          `json:"transport_id"`
	Params      json.RawMessage `json:"params,omitempty"`
}

type consumerStatePayload struct {
	ConsumerID string `json:"consumer_id"`
}

type layerSwitchedPayload struct {
	Layer     int      `json:"layer"`
	Consumers []string `json:"consumers"`
}

func (ctl *Controller) handleCreateTransport(ctx context.Context, s *session, payload json.RawMessage) {
	var req createTransportRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvCreateTransport, err)
		return
	}
	pid, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvCreateTransport, err)
		return
	}

	info, err := ctl.orch.CreateTransport(ctx, domain.MeetingID(req.MeetingID), domain.ParticipantID(pid), core.Direction(req.Direction))
	if err != nil {
		ctl.fail(s, core.EvCreateTransport, err)
		return
	}
	ctl.reply(s, core.EvTransportCreated, info)
}

func (ctl *Controller) handleConnectTransport(ctx context.Context, s *session, payload json.RawMessage) {
	var req connectTransportRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvConnectTransport, err)
		return
	}

	params, err := ctl.orch.ConnectTransport(ctx, req.TransportID, req.DTLSParameters)
	if err != nil {
		ctl.fail(s, core.EvConnectTransport, err)
		return
	}
	ctl.reply(s, core.EvTransportConnected, transportConnectedPayload{TransportID: req.TransportID, Params: params})
}

func (ctl *Controller) handleProduce(ctx context.Context, s *session, payload json.RawMessage) {
	var req produceRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvProduce, err)
		return
	}
	pid, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvProduce, err)
		return
	}

	meeting := domain.MeetingID(req.MeetingID)
	res, err := ctl.orch.Produce(ctx, meeting, domain.ParticipantID(pid), core.MediaKind(req.Kind), req.RTPParameters)
	if err != nil {
		ctl.fail(s, core.EvProduce, err)
		return
	}
	ctl.rooms.AnnounceProducer(ctx, meeting, domain.ParticipantID(pid), res.ProducerID, res.Kind)
	ctl.reply(s, core.EvProduced, res)
}

func (ctl *Controller) handleConsume(ctx context.Context, s *session, payload json.RawMessage) {
	var req consumeRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvConsume, err)
		return
	}
	pid, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvConsume, err)
		return
	}

	res, err := ctl.orch.Consume(ctx, domain.MeetingID(req.MeetingID), domain.ParticipantID(pid), domain.ParticipantID(req.ProducerParticipant), core.MediaKind(req.Kind), req.RTPCapabilities)
	if err != nil {
		ctl.fail(s, core.EvConsume, err)
		return
	}
	ctl.reply(s, core.EvConsumed, res)
}

func (ctl *Controller) handleResumeConsumer(ctx context.Context, s *session, payload json.RawMessage) {
	var req consumerRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvResumeConsumer, err)
		return
	}
	if err := ctl.orch.ResumeConsumer(ctx, req.ConsumerID); err != nil {
		ctl.fail(s, core.EvResumeConsumer, err)
		return
	}
	ctl.reply(s, core.EvConsumerResumed, consumerStatePayload{ConsumerID: req.ConsumerID})
}

func (ctl *Controller) handlePauseConsumer(ctx context.Context, s *session, payload json.RawMessage) {
	var req consumerRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvPauseConsumer, err)
		return
	}
	if err := ctl.orch.PauseConsumer(ctx, req.ConsumerID); err != nil {
		ctl.fail(s, core.EvPauseConsumer, err)
		return
	}
	ctl.reply(s, core.EvConsumerPaused, consumerStatePayload{ConsumerID: req.ConsumerID})
}

func (ctl *Controller) handleSwitchQuality(ctx context.Context, s *session, payload json.RawMessage) {
	var req switchQualityRequest
	if err := ctl.bind(payload, &req); err != nil {
		ctl.fail(s, core.EvSwitchQuality, err)
		return
	}
	pid, err := s.inRoom(req.MeetingID)
	if err != nil {
		ctl.fail(s, core.EvSwitchQuality, err)
		return
	}

	targets := []string{req.ConsumerID}
	if req.ConsumerID == "" {
		targets = ctl.orch.VideoConsumersOf(domain.MeetingID(req.MeetingID), domain.ParticipantID(pid))
	}
	switched := make([]string, 0, len(targets))
	for _, id := range targets {
		if err := ctl.orch.SwitchLayer(ctx, id, *req.Layer); err != nil {
			ctl.fail(s, core.EvSwitchQuality, err)
			return
		}
		switched = append(switched, id)
	}
	ctl.reply(s, core.EvLayerSwitched, layerSwitchedPayload{Layer: *req.Layer, Consumers: switched})
}
