package rooms

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

// UpdateMediaStatus applies a client's reported media state and tells the
// room. Starting a screen share is gated on the meeting feature flag and the
// participant's permission; a host mute cannot be cleared from here.
func (m *Manager) UpdateMediaStatus(ctx context.Context, meeting domain.MeetingID, pid domain.ParticipantID, state domain.MediaState) error {
	room, ok := m.lookup(meeting)
	if !ok {
		return core.Reject(core.CodeNotFound, "room %s is not live", meeting)
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()

	cur, ok := room.participant(pid)
	if !ok {
		return core.Reject(core.CodeNotInRoom, "participant %s is not in the room", pid)
	}

	if state.ScreenSharing && !cur.Media.ScreenSharing {
		meetingRec, err := m.store.Meetings.GetByID(ctx, meeting)
		if err != nil {
			return err
		}
		if !meetingRec.Features.ScreenShare {
			return core.Reject(core.CodeFeatureDisabled, "screen share is disabled for this meeting")
		}
		if !cur.Permissions.CanShareScreen {
			return core.Reject(core.CodeAccessDenied, "screen share is not permitted")
		}
		meetingRec.RecordScreenShare()
		if err := m.store.Meetings.Update(ctx, meetingRec); err != nil {
			log.Warn().Str("module", "rooms.manager").Str("meeting", string(meeting)).Err(err).Msg("screen share counter update failed")
		}
	}

	state.MutedByHost = cur.Media.MutedByHost

	room.mu.Lock()
	p, ok := room.participants[pid]
	if !ok {
		room.mu.Unlock()
		return core.Reject(core.CodeNotInRoom, "participant %s is not in the room", pid)
	}
	p.Media = state
	cp := *p
	members := room.liveUsersLocked()
	room.mu.Unlock()

	if err := m.store.Participants.Update(ctx, &cp); err != nil {
		log.Error().Str("module", "rooms.manager").Str("participant", string(pid)).Err(err).Msg("media status persist failed")
	}
	m.bc.ToRoom(ctx, meeting, members, "", core.EvMediaStatusChanged, MediaStatusChangedEvent{
		ParticipantID: pid,
		UserID:        cp.UserID,
		Media:         cp.Media,
	})
	return nil
}

// ReportQuality records one connection quality sample into the participant
// record and the meeting's running average.
func (m *Manager) ReportQuality(ctx context.Context, meeting domain.MeetingID, pid domain.ParticipantID, q domain.ConnectionQuality) error {
	room, ok := m.lookup(meeting)
	if !ok {
		return core.Reject(core.CodeNotFound, "room %s is not live", meeting)
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()

	room.mu.Lock()
	p, ok := room.participants[pid]
	if !ok {
		room.mu.Unlock()
		return core.Reject(core.CodeNotInRoom, "participant %s is not in the room", pid)
	}
	p.Quality = q
	room.mu.Unlock()

	if q.Score() == 0 {
		return nil
	}
	meetingRec, err := m.store.Meetings.GetByID(ctx, meeting)
	if err != nil {
		log.Warn().Str("module", "rooms.manager").Str("meeting", string(meeting)).Err(err).Msg("quality sample dropped, meeting load failed")
		return nil
	}
	meetingRec.ObserveQuality(q)
	if err := m.store.Meetings.Update(ctx, meetingRec); err != nil {
		log.Warn().Str("module", "rooms.manager").Str("meeting", string(meeting)).Err(err).Msg("quality sample persist failed")
	}
	return nil
}
