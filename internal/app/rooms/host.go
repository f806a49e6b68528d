package rooms

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
	"github.com/campushub/meetcore/internal/repository"
)

// hostCheck re-reads the actor's permissions at call time; host powers
// granted or revoked mid-meeting take effect on the next action.
func (m *Manager) hostCheck(meeting domain.MeetingID, actor domain.ParticipantID) (*Room, domain.Participant, error) {
	room, ok := m.lookup(meeting)
	if !ok {
		return nil, domain.Participant{}, core.Reject(core.CodeNotFound, "room %s is not live", meeting)
	}
	p, ok := room.participant(actor)
	if !ok {
		return nil, domain.Participant{}, core.Reject(core.CodeNotInRoom, "participant %s is not in the room", actor)
	}
	if !p.Permissions.IsHost && !p.Permissions.IsModerator {
		return nil, domain.Participant{}, core.Reject(core.CodeNotHost, "operation requires host permissions")
	}
	return room, p, nil
}

// auditMeeting appends one audit entry; call with the room's operation lock
// held so the read-modify-write cannot interleave with another mutation.
func (m *Manager) auditMeeting(ctx context.Context, meetingID domain.MeetingID, action string, actor domain.UserID, details map[string]string) {
	meeting, err := m.store.Meetings.GetByID(ctx, meetingID)
	if err != nil {
		log.Error().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Str("action", action).Err(err).Msg("audit load failed")
		return
	}
	meeting.Audit(action, actor, details)
	if err := m.store.Meetings.Update(ctx, meeting); err != nil {
		log.Error().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Str("action", action).Err(err).Msg("audit write failed")
	}
}

// Mute force-mutes a participant's audio. The flag sticks until the host
// acts again; the client cannot clear it through media-status reports.
func (m *Manager) Mute(ctx context.Context, meeting domain.MeetingID, actor, target domain.ParticipantID) error {
	room, actorP, err := m.hostCheck(meeting, actor)
	if err != nil {
		return err
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()

	room.mu.Lock()
	tp, ok := room.participants[target]
	if !ok {
		room.mu.Unlock()
		return core.Reject(core.CodeNotFound, "participant %s is not in the room", target)
	}
	tp.Media.AudioEnabled = false
	tp.Media.MutedByHost = true
	cp := *tp
	members := room.liveUsersLocked()
	room.mu.Unlock()

	if err := m.store.Participants.Update(ctx, &cp); err != nil {
		log.Error().Str("module", "rooms.manager").Str("participant", string(target)).Err(err).Msg("mute persist failed")
	}
	m.auditMeeting(ctx, meeting, domain.AuditParticipantMuted, actorP.UserID, map[string]string{"participant": string(target)})
	m.bc.ToRoom(ctx, meeting, members, "", core.EvParticipantMuted, ParticipantMutedEvent{ParticipantID: target, By: actorP.UserID})
	return nil
}

// Kick removes a participant session from the meeting. The kicked user drops
// off the chat roster once their last session is gone, and their connection
// is severed.
func (m *Manager) Kick(ctx context.Context, meeting domain.MeetingID, actor, target domain.ParticipantID) error {
	room, actorP, err := m.hostCheck(meeting, actor)
	if err != nil {
		return err
	}
	if actor == target {
		return core.Reject(core.CodeBadPayload, "cannot kick yourself")
	}

	room.opMu.Lock()
	tp, ok := room.participant(target)
	if !ok {
		room.opMu.Unlock()
		return core.Reject(core.CodeNotFound, "participant %s is not in the room", target)
	}

	m.bc.ToRoom(ctx, meeting, room.liveUsers(), "", core.EvParticipantKicked, ParticipantKickedEvent{
		ParticipantID: target,
		UserID:        tp.UserID,
		By:            actorP.UserID,
	})
	m.auditMeeting(ctx, meeting, domain.AuditParticipantKicked, actorP.UserID, map[string]string{"participant": string(target)})
	m.leaveLocked(ctx, room, target, ReasonKicked)

	room.mu.Lock()
	stillHere := false
	for _, p := range room.participants {
		if p.UserID == tp.UserID {
			stillHere = true
			break
		}
	}
	if !stillHere {
		delete(room.roster, tp.UserID)
		delete(room.hosts, tp.UserID)
	}
	room.mu.Unlock()
	room.opMu.Unlock()

	m.reg.Cancel(core.ConnectionID(tp.ConnectionID))
	return nil
}

// Spotlight pins one participant for the whole room; an empty target clears
// the pin. Spotlight is room state only, it does not survive the room.
func (m *Manager) Spotlight(ctx context.Context, meeting domain.MeetingID, actor, target domain.ParticipantID) error {
	room, actorP, err := m.hostCheck(meeting, actor)
	if err != nil {
		return err
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()

	room.mu.Lock()
	if target != "" {
		if _, ok := room.participants[target]; !ok {
			room.mu.Unlock()
			return core.Reject(core.CodeNotFound, "participant %s is not in the room", target)
		}
	}
	room.spotlight = target
	members := room.liveUsersLocked()
	room.mu.Unlock()

	m.auditMeeting(ctx, meeting, domain.AuditSpotlightChanged, actorP.UserID, map[string]string{"participant": string(target)})
	m.bc.ToRoom(ctx, meeting, members, "", core.EvSpotlightChanged, SpotlightChangedEvent{ParticipantID: target, By: actorP.UserID})
	return nil
}

// StartRecording opens a recording session for the meeting. One at a time.
func (m *Manager) StartRecording(ctx context.Context, meeting domain.MeetingID, actor domain.ParticipantID) (*domain.Recording, error) {
	room, actorP, err := m.hostCheck(meeting, actor)
	if err != nil {
		return nil, err
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()

	meetingRec, err := m.store.Meetings.GetByID(ctx, meeting)
	if err != nil {
		return nil, err
	}
	if !meetingRec.Features.Recording {
		return nil, core.Reject(core.CodeFeatureDisabled, "recording is disabled for this meeting")
	}
	if rec, err := m.store.Recordings.ActiveByMeeting(ctx, meeting); err == nil {
		return nil, core.Reject(core.CodeRecordingActive, "recording %s is already active", rec.ID)
	} else if !errors.Is(err, repository.ErrRecordingNotFound) {
		return nil, err
	}

	rec := domain.NewRecording(meeting, actorP.UserID)
	if err := m.store.Recordings.Create(ctx, rec); err != nil {
		return nil, err
	}
	meetingRec.Audit(domain.AuditRecordingStarted, actorP.UserID, map[string]string{"recording": rec.ID})
	if err := m.store.Meetings.Update(ctx, meetingRec); err != nil {
		log.Error().Str("module", "rooms.manager").Str("meeting", string(meeting)).Err(err).Msg("recording audit write failed")
	}

	m.bc.ToRoom(ctx, meeting, room.liveUsers(), "", core.EvRecordingStarted, RecordingEvent{
		RecordingID: rec.ID,
		MeetingID:   meeting,
		Status:      rec.Status,
		By:          actorP.UserID,
	})
	log.Info().Str("module", "rooms.manager").Str("meeting", string(meeting)).Str("recording", rec.ID).Msg("recording started")
	return rec, nil
}

// StopRecording finalizes the active recording.
func (m *Manager) StopRecording(ctx context.Context, meeting domain.MeetingID, actor domain.ParticipantID) (*domain.Recording, error) {
	room, actorP, err := m.hostCheck(meeting, actor)
	if err != nil {
		return nil, err
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()

	rec, err := m.store.Recordings.ActiveByMeeting(ctx, meeting)
	if err != nil {
		if errors.Is(err, repository.ErrRecordingNotFound) {
			return nil, core.Reject(core.CodeRecordingNotActive, "no active recording")
		}
		return nil, err
	}
	rec.Stop(m.now())
	if err := m.store.Recordings.Update(ctx, rec); err != nil {
		return nil, err
	}
	m.auditMeeting(ctx, meeting, domain.AuditRecordingStopped, actorP.UserID, map[string]string{"recording": rec.ID})
	m.bc.ToRoom(ctx, meeting, room.liveUsers(), "", core.EvRecordingStopped, RecordingEvent{
		RecordingID: rec.ID,
		MeetingID:   meeting,
		Status:      rec.Status,
		By:          actorP.UserID,
	})
	log.Info().Str("module", "rooms.manager").Str("meeting", string(meeting)).Str("recording", rec.ID).Msg("recording stopped")
	return rec, nil
}

// PauseRecording suspends the running recording without finalizing it.
func (m *Manager) PauseRecording(ctx context.Context, meeting domain.MeetingID, actor domain.ParticipantID) (*domain.Recording, error) {
	room, actorP, err := m.hostCheck(meeting, actor)
	if err != nil {
		return nil, err
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()

	rec, err := m.store.Recordings.ActiveByMeeting(ctx, meeting)
	if err != nil {
		if errors.Is(err, repository.ErrRecordingNotFound) {
			return nil, core.Reject(core.CodeRecordingNotActive, "no active recording")
		}
		return nil, err
	}
	if rec.Status != domain.RecordingActive {
		return nil, core.Reject(core.CodeRecordingNotActive, "recording is not running")
	}
	rec.Status = domain.RecordingPaused
	if err := m.store.Recordings.Update(ctx, rec); err != nil {
		return nil, err
	}
	m.auditMeeting(ctx, meeting, domain.AuditRecordingPaused, actorP.UserID, map[string]string{"recording": rec.ID})
	m.bc.ToRoom(ctx, meeting, room.liveUsers(), "", core.EvRecordingPaused, RecordingEvent{
		RecordingID: rec.ID,
		MeetingID:   meeting,
		Status:      rec.Status,
		By:          actorP.UserID,
	})
	return rec, nil
}

// ResumeRecording restarts a paused recording.
func (m *Manager) ResumeRecording(ctx context.Context, meeting domain.MeetingID, actor domain.ParticipantID) (*domain.Recording, error) {
	room, actorP, err := m.hostCheck(meeting, actor)
	if err != nil {
		return nil, err
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()

	rec, err := m.store.Recordings.ActiveByMeeting(ctx, meeting)
	if err != nil {
		if errors.Is(err, repository.ErrRecordingNotFound) {
			return nil, core.Reject(core.CodeRecordingNotActive, "no active recording")
		}
		return nil, err
	}
	if rec.Status != domain.RecordingPaused {
		return nil, core.Reject(core.CodeRecordingNotActive, "recording is not paused")
	}
	rec.Status = domain.RecordingActive
	if err := m.store.Recordings.Update(ctx, rec); err != nil {
		return nil, err
	}
	m.auditMeeting(ctx, meeting, domain.AuditRecordingResumed, actorP.UserID, map[string]string{"recording": rec.ID})
	m.bc.ToRoom(ctx, meeting, room.liveUsers(), "", core.EvRecordingResumed, RecordingEvent{
		RecordingID: rec.ID,
		MeetingID:   meeting,
		Status:      rec.Status,
		By:          actorP.UserID,
	})
	return rec, nil
}
