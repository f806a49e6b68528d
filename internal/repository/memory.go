package repository

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/campushub/meetcore/internal/domain"
)

// NewMemoryStore builds the in-memory backend. Records are cloned at the
// boundary in both directions, so callers see database semantics: mutations
// become visible only through Update.
func NewMemoryStore() *Store {
	return &Store{
		Meetings:     NewInMemoryMeetingRepository(),
		Participants: NewInMemoryParticipantRepository(),
		Messages:     NewInMemoryMessageRepository(),
		Recordings:   NewInMemoryRecordingRepository(),
	}
}

func cloneMeeting(m *domain.Meeting) *domain.Meeting {
	cp := *m
	cp.AuditTrail = slices.Clone(m.AuditTrail)
	return &cp
}

func cloneParticipant(p *domain.Participant) *domain.Participant {
	cp := *p
	return &cp
}

func cloneMessage(m *domain.ChatMessage) *domain.ChatMessage {
	cp := *m
	cp.SeenBy = slices.Clone(m.SeenBy)
	return &cp
}

func cloneRecording(r *domain.Recording) *domain.Recording {
	cp := *r
	return &cp
}

type InMemoryMeetingRepository struct {
	mu       sync.RWMutex
	meetings map[domain.MeetingID]*domain.Meeting
}

func NewInMemoryMeetingRepository() *InMemoryMeetingRepository {
	return &InMemoryMeetingRepository{meetings: make(map[domain.MeetingID]*domain.Meeting)}
}

func (r *InMemoryMeetingRepository) Create(ctx context.Context, m *domain.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings[m.ID] = cloneMeeting(m)
	return nil
}

func (r *InMemoryMeetingRepository) GetByID(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[id]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	return cloneMeeting(m), nil
}

func (r *InMemoryMeetingRepository) Update(ctx context.Context, m *domain.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meetings[m.ID]; !ok {
		return ErrMeetingNotFound
	}
	r.meetings[m.ID] = cloneMeeting(m)
	return nil
}

func (r *InMemoryMeetingRepository) ListByTenant(ctx context.Context, tenant domain.TenantID) ([]*domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Meeting, 0, len(r.meetings))
	for _, m := range r.meetings {
		if m.TenantID == tenant {
			out = append(out, cloneMeeting(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type InMemoryParticipantRepository struct {
	mu           sync.RWMutex
	participants map[domain.ParticipantID]*domain.Participant
	byMeeting    map[domain.MeetingID][]domain.ParticipantID
}

func NewInMemoryParticipantRepository() *InMemoryParticipantRepository {
	return &InMemoryParticipantRepository{
		participants: make(map[domain.ParticipantID]*domain.Participant),
		byMeeting:    make(map[domain.MeetingID][]domain.ParticipantID),
	}
}

func (r *InMemoryParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[p.ID]; !ok {
		r.byMeeting[p.MeetingID] = append(r.byMeeting[p.MeetingID], p.ID)
	}
	r.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (r *InMemoryParticipantRepository) Update(ctx context.Context, p *domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[p.ID]; !ok {
		return ErrParticipantNotFound
	}
	r.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (r *InMemoryParticipantRepository) GetByID(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return cloneParticipant(p), nil
}

func (r *InMemoryParticipantRepository) ListByMeeting(ctx context.Context, meeting domain.MeetingID) ([]*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byMeeting[meeting]
	out := make([]*domain.Participant, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.participants[id]; ok {
			out = append(out, cloneParticipant(p))
		}
	}
	return out, nil
}

type InMemoryMessageRepository struct {
	mu        sync.RWMutex
	messages  map[string]*domain.ChatMessage
	byMeeting map[domain.MeetingID][]string
}

func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{
		messages:  make(map[string]*domain.ChatMessage),
		byMeeting: make(map[domain.MeetingID][]string),
	}
}

func (r *InMemoryMessageRepository) Create(ctx context.Context, m *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.ID]; !ok {
		r.byMeeting[m.MeetingID] = append(r.byMeeting[m.MeetingID], m.ID)
	}
	r.messages[m.ID] = cloneMessage(m)
	return nil
}

func (r *InMemoryMessageRepository) Update(ctx context.Context, m *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.ID]; !ok {
		return ErrMessageNotFound
	}
	r.messages[m.ID] = cloneMessage(m)
	return nil
}

func (r *InMemoryMessageRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return cloneMessage(m), nil
}

// ListByMeeting returns the newest messages in send order, capped at limit
// when limit is positive.
func (r *InMemoryMessageRepository) ListByMeeting(ctx context.Context, meeting domain.MeetingID, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byMeeting[meeting]
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]*domain.ChatMessage, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.messages[id]; ok {
			out = append(out, cloneMessage(m))
		}
	}
	return out, nil
}

type InMemoryRecordingRepository struct {
	mu         sync.RWMutex
	recordings map[string]*domain.Recording
}

func NewInMemoryRecordingRepository() *InMemoryRecordingRepository {
	return &InMemoryRecordingRepository{recordings: make(map[string]*domain.Recording)}
}

func (r *InMemoryRecordingRepository) Create(ctx context.Context, rec *domain.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordings[rec.ID] = cloneRecording(rec)
	return nil
}

func (r *InMemoryRecordingRepository) Update(ctx context.Context, rec *domain.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recordings[rec.ID]; !ok {
		return ErrRecordingNotFound
	}
	r.recordings[rec.ID] = cloneRecording(rec)
	return nil
}

func (r *InMemoryRecordingRepository) ActiveByMeeting(ctx context.Context, meeting domain.MeetingID) (*domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.recordings {
		if rec.MeetingID == meeting && rec.Active() {
			return cloneRecording(rec), nil
		}
	}
	return nil, ErrRecordingNotFound
}
