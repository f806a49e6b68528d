package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingLive      MeetingStatus = "live"
	MeetingEnded     MeetingStatus = "ended"
	MeetingCancelled MeetingStatus = "cancelled"
)

const (
	DefaultMaxParticipants = 50
	MaxTitleLen            = 120
)

var (
	ErrTitleEmpty      = errors.New("meeting title empty")
	ErrTitleTooLong    = errors.New("meeting title too long")
	ErrMeetingTerminal = errors.New("meeting already ended or cancelled")
)

// Features are the per-meeting feature flags snapshotted at creation time.
type Features struct {
	Chat        bool `json:"chat"`
	ScreenShare bool `json:"screen_share"`
	Recording   bool `json:"recording"`
}

func DefaultFeatures() Features {
	return Features{Chat: true, ScreenShare: true, Recording: true}
}

// SFUConfig is the media configuration snapshot a meeting was created with.
// It only describes orchestration-level knobs, never codec details.
type SFUConfig struct {
	SimulcastProfile string `json:"simulcast_profile"`
	WorkerCount      int    `json:"worker_count"`
}

// Analytics holds the simple counters this core maintains for a meeting.
// Anything beyond these lives in the platform's reporting services.
type Analytics struct {
	PeakParticipants int        `json:"peak_participants"`
	TotalJoins       int        `json:"total_joins"`
	ChatMessages     int        `json:"chat_messages"`
	ScreenShares     int        `json:"screen_shares"`
	QualitySum       int        `json:"quality_sum"`
	QualitySamples   int        `json:"quality_samples"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	DurationSeconds  int64      `json:"duration_seconds"`
}

// AvgConnectionQuality is the running mean of reported quality scores (1..4).
func (a Analytics) AvgConnectionQuality() float64 {
	if a.QualitySamples == 0 {
		return 0
	}
	return float64(a.QualitySum) / float64(a.QualitySamples)
}

// AuditEntry is one append-only audit-trail record on a meeting.
type AuditEntry struct {
	At      time.Time         `json:"at"`
	Action  string            `json:"action"`
	Actor   UserID            `json:"actor"`
	Details map[string]string `json:"details,omitempty"`
}

// Audit actions written by the session manager.
const (
	AuditMeetingStarted    = "meeting-started"
	AuditMeetingEnded      = "meeting-ended"
	AuditMeetingCancelled  = "meeting-cancelled"
	AuditParticipantJoined = "participant-joined"
	AuditParticipantLeft   = "participant-left"
	AuditParticipantMuted  = "participant-muted"
	AuditParticipantKicked = "participant-kicked"
	AuditSpotlightChanged  = "spotlight-changed"
	AuditRecordingStarted  = "recording-started"
	AuditRecordingStopped  = "recording-stopped"
	AuditRecordingPaused   = "recording-paused"
	AuditRecordingResumed  = "recording-resumed"
)

// Meeting is the persisted record of one scheduled or running meeting.
type Meeting struct {
	ID              MeetingID     `json:"id"`
	TenantID        TenantID      `json:"tenant_id"`
	CreatorID       UserID        `json:"creator_id"`
	Title           string        `json:"title"`
	Status          MeetingStatus `json:"status"`
	MaxParticipants int           `json:"max_participants"`
	Features        Features      `json:"features"`
	SFU             SFUConfig     `json:"sfu"`
	Analytics       Analytics     `json:"analytics"`
	AuditTrail      []AuditEntry  `json:"audit_trail,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// NewMeeting builds a scheduled meeting owned by the given tenant and creator.
func NewMeeting(tenant TenantID, creator UserID, title string, maxParticipants int) (*Meeting, error) {
	if title == "" {
		return nil, ErrTitleEmpty
	}
	if len(title) > MaxTitleLen {
		return nil, ErrTitleTooLong
	}
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}
	return &Meeting{
		ID:              MeetingID(uuid.NewString()),
		TenantID:        tenant,
		CreatorID:       creator,
		Title:           title,
		Status:          MeetingScheduled,
		MaxParticipants: maxParticipants,
		Features:        DefaultFeatures(),
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// Terminal reports whether the meeting reached an immutable state.
func (m *Meeting) Terminal() bool {
	return m.Status == MeetingEnded || m.Status == MeetingCancelled
}

// Start transitions scheduled -> live and stamps analytics.
func (m *Meeting) Start(now time.Time) error {
	if m.Terminal() {
		return ErrMeetingTerminal
	}
	if m.Status == MeetingLive {
		return nil
	}
	m.Status = MeetingLive
	t := now.UTC()
	m.Analytics.StartedAt = &t
	return nil
}

// End finalizes the meeting and its duration counters. Ending twice is a no-op.
func (m *Meeting) End(now time.Time) {
	if m.Status == MeetingEnded {
		return
	}
	m.Status = MeetingEnded
	t := now.UTC()
	m.Analytics.EndedAt = &t
	if m.Analytics.StartedAt != nil {
		m.Analytics.DurationSeconds = int64(t.Sub(*m.Analytics.StartedAt) / time.Second)
	}
}

// Cancel marks a non-terminal meeting cancelled.
func (m *Meeting) Cancel() error {
	if m.Terminal() {
		return ErrMeetingTerminal
	}
	m.Status = MeetingCancelled
	return nil
}

// RecordJoin bumps the join counters against the current live count.
func (m *Meeting) RecordJoin(liveCount int) {
	m.Analytics.TotalJoins++
	if liveCount > m.Analytics.PeakParticipants {
		m.Analytics.PeakParticipants = liveCount
	}
}

func (m *Meeting) RecordChat() { m.Analytics.ChatMessages++ }

func (m *Meeting) RecordScreenShare() { m.Analytics.ScreenShares++ }

// ObserveQuality feeds one reported quality score into the running average.
func (m *Meeting) ObserveQuality(q ConnectionQuality) {
	if s := q.Score(); s > 0 {
		m.Analytics.QualitySum += s
		m.Analytics.QualitySamples++
	}
}

// Audit appends one entry to the append-only trail.
func (m *Meeting) Audit(action string, actor UserID, details map[string]string) {
	m.AuditTrail = append(m.AuditTrail, AuditEntry{
		At:      time.Now().UTC(),
		Action:  action,
		Actor:   actor,
		Details: details,
	})
}
