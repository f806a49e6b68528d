package rooms

import (
	"sync"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

// Room is this instance's live view of one meeting: the connected join
// sessions plus the accumulated roster of everyone who has been in the
// meeting. The roster outlives disconnects so chat can still address absent
// members; it empties only when the meeting ends or a member is kicked.
//
// opMu serializes whole operations (join, leave, host actions) so meeting
// record read-modify-write cycles never interleave; mu guards the maps so
// directory reads stay cheap.
type Room struct {
	meetingID domain.MeetingID

	opMu sync.Mutex

	mu           sync.RWMutex
	participants map[domain.ParticipantID]*domain.Participant
	byConn       map[string]domain.ParticipantID
	roster       map[domain.UserID]string
	hosts        map[domain.UserID]struct{}
	spotlight    domain.ParticipantID
	closed       bool
}

func newRoom(meetingID domain.MeetingID) *Room {
	return &Room{
		meetingID:    meetingID,
		participants: make(map[domain.ParticipantID]*domain.Participant),
		byConn:       make(map[string]domain.ParticipantID),
		roster:       make(map[domain.UserID]string),
		hosts:        make(map[domain.UserID]struct{}),
	}
}

func (r *Room) addLocked(p *domain.Participant) (count int, first bool) {
	r.participants[p.ID] = p
	r.byConn[p.ConnectionID] = p.ID
	r.roster[p.UserID] = p.DisplayName
	if p.Permissions.IsHost || p.Permissions.IsModerator {
		r.hosts[p.UserID] = struct{}{}
	}
	return len(r.participants), len(r.participants) == 1
}

func (r *Room) removeLocked(id domain.ParticipantID) (p *domain.Participant, remaining int, userGone bool) {
	p, ok := r.participants[id]
	if !ok {
		return nil, len(r.participants), false
	}
	delete(r.participants, id)
	delete(r.byConn, p.ConnectionID)
	if r.spotlight == id {
		r.spotlight = ""
	}
	userGone = true
	for _, other := range r.participants {
		if other.UserID == p.UserID {
			userGone = false
			break
		}
	}
	return p, len(r.participants), userGone
}

// liveUsers is the distinct set of users with a connected session here.
func (r *Room) liveUsers() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.liveUsersLocked()
}

func (r *Room) liveUsersLocked() []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(r.participants))
	out := make([]domain.UserID, 0, len(r.participants))
	for _, p := range r.participants {
		if _, dup := seen[p.UserID]; dup {
			continue
		}
		seen[p.UserID] = struct{}{}
		out = append(out, p.UserID)
	}
	return out
}

// snapshot copies the live participants for a reply payload.
func (r *Room) snapshot() []*domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

func (r *Room) participant(id domain.ParticipantID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

func (r *Room) connOf(id domain.ParticipantID) (core.ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return "", false
	}
	return core.ConnectionID(p.ConnectionID), true
}
