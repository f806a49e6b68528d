package model

import "time"

type Meeting struct {
	ID              string    `gorm:"size:64;primaryKey"`
	TenantID        string    `gorm:"size:64;index;not null"`
	CreatorID       string    `gorm:"size:64;index;not null"`
	Title           string    `gorm:"size:255;not null"`
	Status          string    `gorm:"size:32;not null"`
	MaxParticipants int       `gorm:"not null"`
	Features        string    `gorm:"type:jsonb;not null;default:'{}'"`
	SFUConfig       string    `gorm:"type:jsonb;not null;default:'{}'"`
	AuditTrail      string    `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt       time.Time `gorm:"not null"`

	PeakParticipants int        `gorm:"not null;default:0"`
	TotalJoins       int        `gorm:"not null;default:0"`
	ChatMessages     int        `gorm:"not null;default:0"`
	ScreenShares     int        `gorm:"not null;default:0"`
	QualitySum       int        `gorm:"not null;default:0"`
	QualitySamples   int        `gorm:"not null;default:0"`
	StartedAt        *time.Time `gorm:"index"`
	EndedAt          *time.Time
	DurationSeconds  int64 `gorm:"not null;default:0"`
}

type Participant struct {
	ID           string    `gorm:"size:64;primaryKey"`
	MeetingID    string    `gorm:"size:64;index;not null"`
	UserID       string    `gorm:"size:64;index;not null"`
	DisplayName  string    `gorm:"size:255;not null"`
	ConnectionID string    `gorm:"size:64;not null"`
	Status       string    `gorm:"size:32;not null"`
	Permissions  string    `gorm:"type:jsonb;not null;default:'{}'"`
	Media        string    `gorm:"type:jsonb;not null;default:'{}'"`
	Quality      string    `gorm:"size:16;not null"`
	JoinedAt     time.Time `gorm:"not null"`
	LeftAt       *time.Time
}

type Message struct {
	ID          string    `gorm:"size:64;primaryKey"`
	MeetingID   string    `gorm:"size:64;index;not null"`
	SenderID    string    `gorm:"size:64;index;not null"`
	SenderName  string    `gorm:"size:255;not null"`
	Content     string    `gorm:"type:text;not null"`
	Recipient   string    `gorm:"size:16;not null"`
	RecipientID string    `gorm:"size:64"`
	SentAt      time.Time `gorm:"index;not null"`
	SeenBy      string    `gorm:"type:jsonb;not null;default:'[]'"`
}

type Recording struct {
	ID        string    `gorm:"size:64;primaryKey"`
	MeetingID string    `gorm:"size:64;index;not null"`
	StartedBy string    `gorm:"size:64;not null"`
	Status    string    `gorm:"size:32;index;not null"`
	StartedAt time.Time `gorm:"not null"`
	StoppedAt *time.Time
}
