package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/campushub/meetcore/internal/domain"
	"github.com/campushub/meetcore/internal/repository/model"
)

// OpenPostgres connects and migrates the schema.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.Meeting{},
		&model.Participant{},
		&model.Message{},
		&model.Recording{},
	); err != nil {
		return nil, err
	}
	return db, nil
}

// NewPostgresStore builds the Postgres-backed repository bundle.
func NewPostgresStore(db *gorm.DB) *Store {
	return &Store{
		Meetings:     NewPostgresMeetingRepository(db),
		Participants: NewPostgresParticipantRepository(db),
		Messages:     NewPostgresMessageRepository(db),
		Recordings:   NewPostgresRecordingRepository(db),
	}
}

type PostgresMeetingRepository struct {
	db *gorm.DB
}

func NewPostgresMeetingRepository(db *gorm.DB) *PostgresMeetingRepository {
	return &PostgresMeetingRepository{db: db}
}

func (r *PostgresMeetingRepository) Create(ctx context.Context, m *domain.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil {
		return errors.New("meeting is nil")
	}
	return r.db.WithContext(ctx).Create(toModelMeeting(m)).Error
}

func (r *PostgresMeetingRepository) GetByID(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row model.Meeting
	err := r.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMeetingNotFound
		}
		return nil, err
	}
	return toDomainMeeting(&row), nil
}

func (r *PostgresMeetingRepository) Update(ctx context.Context, m *domain.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil {
		return errors.New("meeting is nil")
	}
	res := r.db.WithContext(ctx).Model(&model.Meeting{}).Where("id = ?", string(m.ID)).Updates(meetingUpdates(m))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

func (r *PostgresMeetingRepository) ListByTenant(ctx context.Context, tenant domain.TenantID) ([]*domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []model.Meeting
	err := r.db.WithContext(ctx).Where("tenant_id = ?", string(tenant)).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Meeting, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainMeeting(&rows[i]))
	}
	return out, nil
}

type PostgresParticipantRepository struct {
	db *gorm.DB
}

func NewPostgresParticipantRepository(db *gorm.DB) *PostgresParticipantRepository {
	return &PostgresParticipantRepository{db: db}
}

func (r *PostgresParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil {
		return errors.New("participant is nil")
	}
	return r.db.WithContext(ctx).Create(toModelParticipant(p)).Error
}

func (r *PostgresParticipantRepository) Update(ctx context.Context, p *domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil {
		return errors.New("participant is nil")
	}
	row := toModelParticipant(p)
	updates := map[string]any{
		"connection_id": row.ConnectionID,
		"status":        row.Status,
		"permissions":   row.Permissions,
		"media":         row.Media,
		"quality":       row.Quality,
	}
	if row.LeftAt == nil {
		updates["left_at"] = gorm.Expr("NULL")
	} else {
		updates["left_at"] = row.LeftAt
	}
	res := r.db.WithContext(ctx).Model(&model.Participant{}).Where("id = ?", row.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

func (r *PostgresParticipantRepository) GetByID(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row model.Participant
	err := r.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return toDomainParticipant(&row), nil
}

func (r *PostgresParticipantRepository) ListByMeeting(ctx context.Context, meeting domain.MeetingID) ([]*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []model.Participant
	err := r.db.WithContext(ctx).Where("meeting_id = ?", string(meeting)).Order("joined_at").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Participant, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainParticipant(&rows[i]))
	}
	return out, nil
}

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil {
		return errors.New("message is nil")
	}
	return r.db.WithContext(ctx).Create(toModelMessage(m)).Error
}

func (r *PostgresMessageRepository) Update(ctx context.Context, m *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil {
		return errors.New("message is nil")
	}
	row := toModelMessage(m)
	res := r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", row.ID).
		Update("seen_by", row.SeenBy)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row model.Message
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return toDomainMessage(&row), nil
}

func (r *PostgresMessageRepository) ListByMeeting(ctx context.Context, meeting domain.MeetingID, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Where("meeting_id = ?", string(meeting)).Order("sent_at")
	if limit > 0 {
		sub := r.db.Model(&model.Message{}).
			Where("meeting_id = ?", string(meeting)).
			Order("sent_at DESC").
			Limit(limit).
			Select("id")
		q = q.Where("id IN (?)", sub)
	}
	var rows []model.Message
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.ChatMessage, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainMessage(&rows[i]))
	}
	return out, nil
}

type PostgresRecordingRepository struct {
	db *gorm.DB
}

func NewPostgresRecordingRepository(db *gorm.DB) *PostgresRecordingRepository {
	return &PostgresRecordingRepository{db: db}
}

func (r *PostgresRecordingRepository) Create(ctx context.Context, rec *domain.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil {
		return errors.New("recording is nil")
	}
	return r.db.WithContext(ctx).Create(toModelRecording(rec)).Error
}

func (r *PostgresRecordingRepository) Update(ctx context.Context, rec *domain.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil {
		return errors.New("recording is nil")
	}
	row := toModelRecording(rec)
	updates := map[string]any{"status": row.Status}
	if row.StoppedAt == nil {
		updates["stopped_at"] = gorm.Expr("NULL")
	} else {
		updates["stopped_at"] = row.StoppedAt
	}
	res := r.db.WithContext(ctx).Model(&model.Recording{}).Where("id = ?", row.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

func (r *PostgresRecordingRepository) ActiveByMeeting(ctx context.Context, meeting domain.MeetingID) (*domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row model.Recording
	err := r.db.WithContext(ctx).
		Where("meeting_id = ? AND status IN ?", string(meeting), []string{string(domain.RecordingActive), string(domain.RecordingPaused)}).
		Order("started_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordingNotFound
		}
		return nil, err
	}
	return toDomainRecording(&row), nil
}

func marshalJSON(v any, fallback string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(b)
}

func toModelMeeting(m *domain.Meeting) *model.Meeting {
	return &model.Meeting{
		ID:              string(m.ID),
		TenantID:        string(m.TenantID),
		CreatorID:       string(m.CreatorID),
		Title:           m.Title,
		Status:          string(m.Status),
		MaxParticipants: m.MaxParticipants,
		Features:        marshalJSON(m.Features, "{}"),
		SFUConfig:       marshalJSON(m.SFU, "{}"),
		AuditTrail:      marshalJSON(m.AuditTrail, "[]"),
		CreatedAt:       m.CreatedAt.UTC(),

		PeakParticipants: m.Analytics.PeakParticipants,
		TotalJoins:       m.Analytics.TotalJoins,
		ChatMessages:     m.Analytics.ChatMessages,
		ScreenShares:     m.Analytics.ScreenShares,
		QualitySum:       m.Analytics.QualitySum,
		QualitySamples:   m.Analytics.QualitySamples,
		StartedAt:        m.Analytics.StartedAt,
		EndedAt:          m.Analytics.EndedAt,
		DurationSeconds:  m.Analytics.DurationSeconds,
	}
}

func meetingUpdates(m *domain.Meeting) map[string]any {
	row := toModelMeeting(m)
	updates := map[string]any{
		"title":             row.Title,
		"status":            row.Status,
		"max_participants":  row.MaxParticipants,
		"features":          row.Features,
		"sfu_config":        row.SFUConfig,
		"audit_trail":       row.AuditTrail,
		"peak_participants": row.PeakParticipants,
		"total_joins":       row.TotalJoins,
		"chat_messages":     row.ChatMessages,
		"screen_shares":     row.ScreenShares,
		"quality_sum":       row.QualitySum,
		"quality_samples":   row.QualitySamples,
		"duration_seconds":  row.DurationSeconds,
	}
	if row.StartedAt != nil {
		updates["started_at"] = row.StartedAt
	}
	if row.EndedAt != nil {
		updates["ended_at"] = row.EndedAt
	}
	return updates
}

func toDomainMeeting(row *model.Meeting) *domain.Meeting {
	var features domain.Features
	_ = json.Unmarshal([]byte(row.Features), &features)
	var sfu domain.SFUConfig
	_ = json.Unmarshal([]byte(row.SFUConfig), &sfu)
	var audit []domain.AuditEntry
	_ = json.Unmarshal([]byte(row.AuditTrail), &audit)

	return &domain.Meeting{
		ID:              domain.MeetingID(row.ID),
		TenantID:        domain.TenantID(row.TenantID),
		CreatorID:       domain.UserID(row.CreatorID),
		Title:           row.Title,
		Status:          domain.MeetingStatus(row.Status),
		MaxParticipants: row.MaxParticipants,
		Features:        features,
		SFU:             sfu,
		AuditTrail:      audit,
		CreatedAt:       row.CreatedAt.UTC(),
		Analytics: domain.Analytics{
			PeakParticipants: row.PeakParticipants,
			TotalJoins:       row.TotalJoins,
			ChatMessages:     row.ChatMessages,
			ScreenShares:     row.ScreenShares,
			QualitySum:       row.QualitySum,
			QualitySamples:   row.QualitySamples,
			StartedAt:        row.StartedAt,
			EndedAt:          row.EndedAt,
			DurationSeconds:  row.DurationSeconds,
		},
	}
}

func toModelParticipant(p *domain.Participant) *model.Participant {
	return &model.Participant{
		ID:           string(p.ID),
		MeetingID:    string(p.MeetingID),
		UserID:       string(p.UserID),
		DisplayName:  p.DisplayName,
		ConnectionID: p.ConnectionID,
		Status:       string(p.Status),
		Permissions:  marshalJSON(p.Permissions, "{}"),
		Media:        marshalJSON(p.Media, "{}"),
		Quality:      string(p.Quality),
		JoinedAt:     p.JoinedAt.UTC(),
		LeftAt:       p.LeftAt,
	}
}

func toDomainParticipant(row *model.Participant) *domain.Participant {
	var perms domain.Permissions
	_ = json.Unmarshal([]byte(row.Permissions), &perms)
	var media domain.MediaState
	_ = json.Unmarshal([]byte(row.Media), &media)

	return &domain.Participant{
		ID:           domain.ParticipantID(row.ID),
		MeetingID:    domain.MeetingID(row.MeetingID),
		UserID:       domain.UserID(row.UserID),
		DisplayName:  row.DisplayName,
		ConnectionID: row.ConnectionID,
		Status:       domain.ConnStatus(row.Status),
		Permissions:  perms,
		Media:        media,
		Quality:      domain.ConnectionQuality(row.Quality),
		JoinedAt:     row.JoinedAt.UTC(),
		LeftAt:       row.LeftAt,
	}
}

func toModelMessage(m *domain.ChatMessage) *model.Message {
	return &model.Message{
		ID:          m.ID,
		MeetingID:   string(m.MeetingID),
		SenderID:    string(m.SenderID),
		SenderName:  m.SenderName,
		Content:     m.Content,
		Recipient:   string(m.Recipient),
		RecipientID: string(m.RecipientID),
		SentAt:      m.SentAt.UTC(),
		SeenBy:      marshalJSON(m.SeenBy, "[]"),
	}
}

func toDomainMessage(row *model.Message) *domain.ChatMessage {
	var seen []domain.UserID
	_ = json.Unmarshal([]byte(row.SeenBy), &seen)

	return &domain.ChatMessage{
		ID:          row.ID,
		MeetingID:   domain.MeetingID(row.MeetingID),
		SenderID:    domain.UserID(row.SenderID),
		SenderName:  row.SenderName,
		Content:     row.Content,
		Recipient:   domain.RecipientType(row.Recipient),
		RecipientID: domain.UserID(row.RecipientID),
		SentAt:      row.SentAt.UTC(),
		SeenBy:      seen,
	}
}

func toModelRecording(rec *domain.Recording) *model.Recording {
	return &model.Recording{
		ID:        rec.ID,
		MeetingID: string(rec.MeetingID),
		StartedBy: string(rec.StartedBy),
		Status:    string(rec.Status),
		StartedAt: rec.StartedAt.UTC(),
		StoppedAt: rec.StoppedAt,
	}
}

func toDomainRecording(row *model.Recording) *domain.Recording {
	return &domain.Recording{
		ID:        row.ID,
		MeetingID: domain.MeetingID(row.MeetingID),
		StartedBy: domain.UserID(row.StartedBy),
		Status:    domain.RecordingStatus(row.Status),
		StartedAt: row.StartedAt.UTC(),
		StoppedAt: row.StoppedAt,
	}
}
