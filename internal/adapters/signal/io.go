package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
)

// errorPayload is the error reply for a failed inbound event.
type errorPayload struct {
	Event   string    `json:"event"`
	Code    core.Code `json:"code"`
	Message string    `json:"message"`
}

// writePump drains the send queue to the socket. Closing the socket on exit
// is what unblocks a readPump stuck in ReadMessage.
func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Str("module", "signal").Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Str("module", "signal").Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

// readPump is the single reader for the connection, so a connection's events
// are handled strictly in receipt order. Its exit is the disconnect signal:
// everything the connection holds is released here.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, s *session) {
	defer func() {
		cancel()

		cctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		ctl.rooms.DisconnectConn(cctx, s.id)
		ctl.limiter.Forget(s.id)
		remaining := ctl.reg.Unregister(s.id)
		if _, err := ctl.presence.SetOffline(cctx, s.identity.UserID, ctl.instanceID); err != nil {
			log.Warn().Str("module", "signal").Str("user", string(s.identity.UserID)).Err(err).Msg("presence offline failed")
		}
		s.conn.Close()
		log.Info().Str("module", "signal").Str("conn", string(s.id)).Int("remaining", remaining).Msg("connection down")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.conn.conn.ReadMessage()
			if err != nil {
				log.Debug().Str("module", "signal").Str("conn", string(s.id)).Err(err).Msg("readPump read error")
				return
			}
			ctl.dispatch(ctx, s, data)
		}
	}
}

func (ctl *Controller) dispatch(ctx context.Context, s *session, data []byte) {
	var msg core.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Str("module", "signal").Str("conn", string(s.id)).Err(err).Msg("bad frame")
		ctl.fail(s, "", core.Reject(core.CodeBadPayload, "malformed frame"))
		return
	}

	if !ctl.limiter.Allow(s.id, msg.Type) {
		if ctl.silent[msg.Type] {
			return
		}
		ctl.fail(s, msg.Type, core.Reject(core.CodeRateLimited, "slow down"))
		return
	}

	switch msg.Type {
	case core.EvJoinRoom:
		ctl.handleJoin(ctx, s, msg.Payload)
	case core.EvLeaveRoom:
		ctl.handleLeave(ctx, s, msg.Payload)
	case core.EvCreateTransport:
		ctl.handleCreateTransport(ctx, s, msg.Payload)
	case core.EvConnectTransport:
		ctl.handleConnectTransport(ctx, s, msg.Payload)
	case core.EvProduce:
		ctl.handleProduce(ctx, s, msg.Payload)
	case core.EvConsume:
		ctl.handleConsume(ctx, s, msg.Payload)
	case core.EvResumeConsumer:
		ctl.handleResumeConsumer(ctx, s, msg.Payload)
	case core.EvPauseConsumer:
		ctl.handlePauseConsumer(ctx, s, msg.Payload)
	case core.EvSwitchQuality:
		ctl.handleSwitchQuality(ctx, s, msg.Payload)
	case core.EvSendMessage:
		ctl.handleSendMessage(ctx, s, msg.Payload)
	case core.EvTyping:
		ctl.handleTyping(ctx, s, msg.Payload)
	case core.EvMarkSeen:
		ctl.handleMarkSeen(ctx, s, msg.Payload)
	case core.EvMediaStatus:
		ctl.handleMediaStatus(ctx, s, msg.Payload)
	case core.EvQualityReport:
		ctl.handleQualityReport(ctx, s, msg.Payload)
	case core.EvMuteParticipant:
		ctl.handleMute(ctx, s, msg.Payload)
	case core.EvKickParticipant:
		ctl.handleKick(ctx, s, msg.Payload)
	case core.EvSpotlightParticipant:
		ctl.handleSpotlight(ctx, s, msg.Payload)
	case core.EvStartRecording:
		ctl.handleStartRecording(ctx, s, msg.Payload)
	case core.EvStopRecording:
		ctl.handleStopRecording(ctx, s, msg.Payload)
	case core.EvPauseRecording:
		ctl.handlePauseRecording(ctx, s, msg.Payload)
	case core.EvResumeRecording:
		ctl.handleResumeRecording(ctx, s, msg.Payload)
	case core.EvPing:
		ctl.reply(s, core.EvPong, nil)
	default:
		log.Warn().Str("module", "signal").Str("type", msg.Type).Msg("unknown event")
		ctl.fail(s, msg.Type, core.Reject(core.CodeBadPayload, "unknown event %q", msg.Type))
	}
}

// bind decodes and validates an inbound payload.
func (ctl *Controller) bind(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return core.Reject(core.CodeBadPayload, "payload required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return core.Reject(core.CodeBadPayload, "malformed payload")
	}
	if err := ctl.validate.Struct(v); err != nil {
		return core.Reject(core.CodeBadPayload, "%s", err.Error())
	}
	return nil
}

// inRoom resolves the session's participant id and checks the session sits
// in the event's meeting.
func (s *session) inRoom(meeting string) (string, error) {
	m, pid, ok := s.room()
	if !ok || string(m) != meeting {
		return "", core.Reject(core.CodeNotInRoom, "join the room first")
	}
	return string(pid), nil
}

func (ctl *Controller) reply(s *session, event string, payload any) {
	f, err := core.NewFrame(event, payload)
	if err != nil {
		log.Error().Str("module", "signal").Str("event", event).Err(err).Msg("reply encode failed")
		return
	}
	if err := s.conn.TrySend(f); err != nil {
		log.Debug().Str("module", "signal").Str("conn", string(s.id)).Str("event", event).Err(err).Msg("reply dropped")
	}
}

// fail sends the error reply for an event. Internal faults are logged in
// full and reported to the client only by class.
func (ctl *Controller) fail(s *session, event string, err error) {
	code := core.CodeOf(err)
	msg := "internal error"
	var rej *core.Rejection
	if errors.As(err, &rej) {
		msg = rej.Message
	} else {
		log.Error().Str("module", "signal").Str("conn", string(s.id)).Str("event", event).Err(err).Msg("event failed")
	}
	ctl.reply(s, core.EvError, errorPayload{Event: event, Code: code, Message: msg})
}
