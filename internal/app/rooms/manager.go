// Package rooms implements the meeting session manager: the join/leave
// protocol, the scheduled-live-ended state machine, host actions and the
// per-room live state the rest of the core reads (membership, roster,
// spotlight). Media resources are always driven through the orchestrator,
// never touched directly.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/app"
	"github.com/campushub/meetcore/internal/app/media"
	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
	"github.com/campushub/meetcore/internal/repository"
)

// RoomInfo is the admin-facing summary of one live room on this instance.
type RoomInfo struct {
	MeetingID    domain.MeetingID     `json:"meeting_id"`
	Participants int                  `json:"participants"`
	Spotlight    domain.ParticipantID `json:"spotlight,omitempty"`
}

// Manager owns the room lifecycle on this instance. The local maps are a
// per-instance cache; capacity and online membership defer to the shared
// presence store so the checks hold when several instances run behind one
// balancer.
type Manager struct {
	store    *repository.Store
	presence core.PresenceStore
	orch     *media.Orchestrator
	bc       *app.Broadcaster
	reg      *app.Registry
	now      func() time.Time

	mu    sync.RWMutex
	rooms map[domain.MeetingID]*Room
}

func NewManager(store *repository.Store, presence core.PresenceStore, orch *media.Orchestrator, bc *app.Broadcaster, reg *app.Registry) *Manager {
	m := &Manager{
		store:    store,
		presence: presence,
		orch:     orch,
		bc:       bc,
		reg:      reg,
		now:      time.Now,
		rooms:    make(map[domain.MeetingID]*Room),
	}
	orch.OnNegotiate(m.negotiate)
	bc.SetLocalMembers(m.LocalMembers)
	return m
}

func (m *Manager) roomFor(meeting domain.MeetingID) *Room {
	m.mu.RLock()
	room, ok := m.rooms[meeting]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[meeting]; ok {
		return room
	}
	room = newRoom(meeting)
	m.rooms[meeting] = room
	return room
}

func (m *Manager) lookup(meeting domain.MeetingID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[meeting]
	return room, ok
}

// lockRoom returns the room with its operation lock held, recreating it if a
// concurrent zero-member close retired the instance we raced against.
func (m *Manager) lockRoom(meeting domain.MeetingID) *Room {
	for {
		room := m.roomFor(meeting)
		room.opMu.Lock()
		room.mu.RLock()
		closed := room.closed
		room.mu.RUnlock()
		if !closed {
			return room
		}
		room.opMu.Unlock()
	}
}

// Join runs the join protocol: meeting must exist in the caller's tenant and
// not be over, the room must have capacity, and only then is any state
// created. The first participant allocates media resources; a scheduled
// meeting goes live.
func (m *Manager) Join(ctx context.Context, connID core.ConnectionID, identity domain.Identity, meetingID domain.MeetingID) (*JoinResult, error) {
	meeting, err := m.store.Meetings.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			return nil, core.Reject(core.CodeNotFound, "meeting %s not found", meetingID)
		}
		return nil, err
	}
	if meeting.TenantID != identity.TenantID {
		return nil, core.Reject(core.CodeAccessDenied, "meeting belongs to another tenant")
	}
	if meeting.Terminal() {
		return nil, core.Reject(core.CodeMeetingEnded, "meeting %s is %s", meetingID, meeting.Status)
	}

	room := m.lockRoom(meetingID)
	defer room.opMu.Unlock()

	// Same connection joining again gets its current view back.
	room.mu.RLock()
	if pid, ok := room.byConn[string(connID)]; ok {
		cp := *room.participants[pid]
		room.mu.RUnlock()
		mc := *meeting
		return &JoinResult{
			Meeting:         &mc,
			Participant:     &cp,
			Participants:    room.snapshot(),
			RTPCapabilities: m.orch.RoomCapabilities(meetingID),
		}, nil
	}
	room.mu.RUnlock()

	// Capacity gate: the shared membership set is the authority so the cap
	// holds across instances; the local count covers presence outages.
	card, added, perr := m.presence.AddRoomMember(ctx, meetingID, identity.UserID)
	if perr != nil {
		log.Warn().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Err(perr).Msg("presence unavailable, using local capacity")
		users := room.liveUsers()
		if !containsUser(users, identity.UserID) && len(users) >= meeting.MaxParticipants {
			return nil, core.Reject(core.CodeRoomFull, "meeting %s is full", meetingID)
		}
	} else if card > int64(meeting.MaxParticipants) {
		if added {
			if err := m.presence.RemoveRoomMember(ctx, meetingID, identity.UserID); err != nil {
				log.Error().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Err(err).Msg("capacity rollback failed")
			}
		}
		return nil, core.Reject(core.CodeRoomFull, "meeting %s is full", meetingID)
	}

	p := domain.NewParticipant(meetingID, identity, string(connID), identity.UserID == meeting.CreatorID)
	room.mu.Lock()
	count, first := room.addLocked(p)
	room.mu.Unlock()

	if first {
		if err := m.orch.CreateRoom(ctx, meetingID); err != nil {
			log.Warn().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Err(err).Msg("media allocation failed, room continues without media")
		}
	}

	if meeting.Status == domain.MeetingScheduled {
		if err := meeting.Start(m.now()); err == nil {
			meeting.Audit(domain.AuditMeetingStarted, identity.UserID, nil)
			log.Info().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Msg("meeting live")
		}
	}
	live := count
	if perr == nil {
		live = int(card)
	}
	meeting.RecordJoin(live)
	meeting.Audit(domain.AuditParticipantJoined, identity.UserID, map[string]string{"participant": string(p.ID)})
	if err := m.store.Meetings.Update(ctx, meeting); err != nil {
		log.Warn().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Err(err).Msg("meeting update failed")
	}
	if err := m.store.Participants.Create(ctx, p); err != nil {
		log.Error().Str("module", "rooms.manager").Str("participant", string(p.ID)).Err(err).Msg("participant record create failed")
	}

	cp := *p
	m.bc.ToRoom(ctx, meetingID, room.liveUsers(), identity.UserID, core.EvParticipantJoined, ParticipantJoinedEvent{Participant: &cp})

	log.Info().
		Str("module", "rooms.manager").
		Str("meeting", string(meetingID)).
		Str("participant", string(p.ID)).
		Str("user", string(identity.UserID)).
		Int("live", live).
		Msg("participant joined")

	mc := *meeting
	return &JoinResult{
		Meeting:         &mc,
		Participant:     &cp,
		Participants:    room.snapshot(),
		RTPCapabilities: m.orch.RoomCapabilities(meetingID),
	}, nil
}

// Leave releases one join session. Safe to call for sessions that already
// left; never returns an error because cleanup must always run to completion.
func (m *Manager) Leave(ctx context.Context, meetingID domain.MeetingID, pid domain.ParticipantID, reason string) {
	room, ok := m.lookup(meetingID)
	if !ok {
		return
	}
	room.opMu.Lock()
	defer room.opMu.Unlock()
	m.leaveLocked(ctx, room, pid, reason)
}

// DisconnectConn tears down every join session held by a vanished connection.
func (m *Manager) DisconnectConn(ctx context.Context, connID core.ConnectionID) {
	m.mu.RLock()
	snapshot := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		snapshot = append(snapshot, r)
	}
	m.mu.RUnlock()

	for _, room := range snapshot {
		room.mu.RLock()
		pid, ok := room.byConn[string(connID)]
		room.mu.RUnlock()
		if !ok {
			continue
		}
		room.opMu.Lock()
		m.leaveLocked(ctx, room, pid, ReasonDisconnected)
		room.opMu.Unlock()
	}
}

// leaveLocked is the ordered cleanup path, called with the room's operation
// lock held. Every step is attempted regardless of earlier failures.
func (m *Manager) leaveLocked(ctx context.Context, room *Room, pid domain.ParticipantID, reason string) {
	meetingID := room.meetingID

	room.mu.Lock()
	p, remaining, userGone := room.removeLocked(pid)
	var members []domain.UserID
	if p != nil {
		members = room.liveUsersLocked()
	}
	room.mu.Unlock()
	if p == nil {
		return
	}

	logger := log.With().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Str("participant", string(pid)).Logger()

	if userGone {
		if err := m.presence.RemoveRoomMember(ctx, meetingID, p.UserID); err != nil {
			logger.Error().Err(err).Msg("presence membership removal failed")
		}
	}

	p.Close(m.now())
	if err := m.store.Participants.Update(ctx, p); err != nil {
		logger.Error().Err(err).Msg("participant record close failed")
	}

	m.orch.DisconnectParticipant(ctx, meetingID, pid)

	m.bc.ToRoom(ctx, meetingID, members, "", core.EvParticipantLeft, ParticipantLeftEvent{
		ParticipantID: pid,
		UserID:        p.UserID,
		DisplayName:   p.DisplayName,
		Reason:        reason,
	})

	meeting, err := m.store.Meetings.GetByID(ctx, meetingID)
	if err != nil {
		logger.Error().Err(err).Msg("meeting load failed during leave")
		meeting = nil
	}
	if meeting != nil {
		meeting.Audit(domain.AuditParticipantLeft, p.UserID, map[string]string{"participant": string(pid), "reason": reason})
	}

	if remaining == 0 {
		m.retireRoom(ctx, room, meeting, p.UserID)
	}

	if meeting != nil {
		if err := m.store.Meetings.Update(ctx, meeting); err != nil {
			logger.Error().Err(err).Msg("meeting update failed during leave")
		}
	}
	logger.Info().Str("reason", reason).Int("remaining", remaining).Msg("participant left")
}

// retireRoom runs when the last local session leaves: local media goes away
// immediately, but the meeting record only ends once no instance has members
// left.
func (m *Manager) retireRoom(ctx context.Context, room *Room, meeting *domain.Meeting, actor domain.UserID) {
	meetingID := room.meetingID

	global := int64(0)
	if n, err := m.presence.RoomOnlineCount(ctx, meetingID); err == nil {
		global = n
	} else {
		log.Warn().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Err(err).Msg("presence count failed, assuming room empty")
	}

	room.mu.Lock()
	room.closed = true
	room.mu.Unlock()
	m.mu.Lock()
	delete(m.rooms, meetingID)
	m.mu.Unlock()

	m.orch.CloseRoom(ctx, meetingID)

	if global > 0 {
		log.Info().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Int64("elsewhere", global).Msg("local room retired, meeting continues on other instances")
		return
	}

	if err := m.presence.ClearRoom(ctx, meetingID); err != nil {
		log.Error().Str("module", "rooms.manager").Str("meeting", string(meetingID)).Err(err).Msg("presence room clear failed")
	}
	if meeting != nil && meeting.Status != domain.MeetingEnded {
		meeting.End(m.now())
		meeting.Audit(domain.AuditMeetingEnded, actor, nil)
		log.Info().
			Str("module", "rooms.manager").
			Str("meeting", string(meetingID)).
			Int("peak", meeting.Analytics.PeakParticipants).
			Int("joins", meeting.Analytics.TotalJoins).
			Int64("duration_s", meeting.Analytics.DurationSeconds).
			Msg("meeting ended")
	}
}

// negotiate forwards a server-initiated negotiation round to the session's
// connection; installed as the orchestrator's negotiation sink.
func (m *Manager) negotiate(meeting domain.MeetingID, pid domain.ParticipantID, transportID string, params json.RawMessage) {
	room, ok := m.lookup(meeting)
	if !ok {
		return
	}
	conn, ok := room.connOf(pid)
	if !ok {
		return
	}
	if err := m.reg.SendTo(conn, core.EvTransportNegotiate, TransportNegotiateEvent{TransportID: transportID, Params: params}); err != nil {
		log.Debug().Str("module", "rooms.manager").Str("participant", string(pid)).Err(err).Msg("negotiation push dropped")
	}
}

// AnnounceProducer tells the rest of the room about new published media.
func (m *Manager) AnnounceProducer(ctx context.Context, meeting domain.MeetingID, pid domain.ParticipantID, producerID string, kind core.MediaKind) {
	room, ok := m.lookup(meeting)
	if !ok {
		return
	}
	p, ok := room.participant(pid)
	if !ok {
		return
	}
	m.bc.ToRoom(ctx, meeting, room.liveUsers(), p.UserID, core.EvNewProducer, NewProducerEvent{
		ParticipantID: pid,
		UserID:        p.UserID,
		ProducerID:    producerID,
		Kind:          string(kind),
	})
}

// Participant returns a copy of one live session's record.
func (m *Manager) Participant(meeting domain.MeetingID, pid domain.ParticipantID) (domain.Participant, bool) {
	room, ok := m.lookup(meeting)
	if !ok {
		return domain.Participant{}, false
	}
	return room.participant(pid)
}

// LocalMembers lists users with a live session in the room on this instance.
func (m *Manager) LocalMembers(meeting domain.MeetingID) []domain.UserID {
	room, ok := m.lookup(meeting)
	if !ok {
		return nil
	}
	return room.liveUsers()
}

// Roster lists everyone who has been in the meeting, connected or not.
func (m *Manager) Roster(meeting domain.MeetingID) []domain.UserID {
	room, ok := m.lookup(meeting)
	if !ok {
		return nil
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	out := make([]domain.UserID, 0, len(room.roster))
	for u := range room.roster {
		out = append(out, u)
	}
	return out
}

// Hosts lists roster members who held host or moderator permissions.
func (m *Manager) Hosts(meeting domain.MeetingID) []domain.UserID {
	room, ok := m.lookup(meeting)
	if !ok {
		return nil
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	out := make([]domain.UserID, 0, len(room.hosts))
	for u := range room.hosts {
		out = append(out, u)
	}
	return out
}

func (m *Manager) IsMember(meeting domain.MeetingID, user domain.UserID) bool {
	room, ok := m.lookup(meeting)
	if !ok {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	_, ok = room.roster[user]
	return ok
}

// List summarizes the live rooms on this instance.
func (m *Manager) List() []RoomInfo {
	m.mu.RLock()
	snapshot := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		snapshot = append(snapshot, r)
	}
	m.mu.RUnlock()

	out := make([]RoomInfo, 0, len(snapshot))
	for _, room := range snapshot {
		room.mu.RLock()
		out = append(out, RoomInfo{
			MeetingID:    room.meetingID,
			Participants: len(room.participants),
			Spotlight:    room.spotlight,
		})
		room.mu.RUnlock()
	}
	return out
}

func containsUser(users []domain.UserID, u domain.UserID) bool {
	for _, x := range users {
		if x == u {
			return true
		}
	}
	return false
}
