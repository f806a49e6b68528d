package domain

import (
	"time"

	"github.com/google/uuid"
)

type RecordingStatus string

const (
	RecordingActive    RecordingStatus = "recording"
	RecordingPaused    RecordingStatus = "paused"
	RecordingCompleted RecordingStatus = "completed"
	RecordingFailed    RecordingStatus = "failed"
)

// Recording tracks one recording session of a meeting. The capture pipeline
// itself is external; this core owns only the lifecycle record.
type Recording struct {
	ID        string          `json:"id"`
	MeetingID MeetingID       `json:"meeting_id"`
	StartedBy UserID          `json:"started_by"`
	Status    RecordingStatus `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	StoppedAt *time.Time      `json:"stopped_at,omitempty"`
}

func NewRecording(meetingID MeetingID, startedBy UserID) *Recording {
	return &Recording{
		ID:        uuid.NewString(),
		MeetingID: meetingID,
		StartedBy: startedBy,
		Status:    RecordingActive,
		StartedAt: time.Now().UTC(),
	}
}

// Active reports whether the recording still accepts media.
func (r *Recording) Active() bool {
	return r.Status == RecordingActive || r.Status == RecordingPaused
}

// Stop finalizes the recording. Stopping twice keeps the first stop time.
func (r *Recording) Stop(now time.Time) {
	if r.StoppedAt != nil {
		return
	}
	t := now.UTC()
	r.StoppedAt = &t
	r.Status = RecordingCompleted
}
