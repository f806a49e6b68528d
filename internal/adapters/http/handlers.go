package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/app/media"
	"github.com/campushub/meetcore/internal/app/messaging"
	"github.com/campushub/meetcore/internal/app/rooms"
	"github.com/campushub/meetcore/internal/domain"
	"github.com/campushub/meetcore/internal/repository"
)

const defaultHistoryLimit = 50

// Handler implements the REST endpoints over the store and the live
// subsystems.
type Handler struct {
	store    *repository.Store
	rooms    *rooms.Manager
	orch     *media.Orchestrator
	delivery *messaging.Delivery
}

func NewHandler(store *repository.Store, manager *rooms.Manager, orch *media.Orchestrator, delivery *messaging.Delivery) *Handler {
	return &Handler{store: store, rooms: manager, orch: orch, delivery: delivery}
}

type createMeetingRequest struct {
	Title           string `json:"title" binding:"required"`
	MaxParticipants int    `json:"max_participants"`
	Instant         bool   `json:"instant"`
	Chat            *bool  `json:"chat"`
	ScreenShare     *bool  `json:"screen_share"`
	Recording       *bool  `json:"recording"`
}

// CreateMeeting schedules a meeting, or starts it immediately when the
// request says instant.
func (h *Handler) CreateMeeting(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	identity := identityFrom(c)

	meeting, err := domain.NewMeeting(identity.TenantID, identity.UserID, req.Title, req.MaxParticipants)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Chat != nil {
		meeting.Features.Chat = *req.Chat
	}
	if req.ScreenShare != nil {
		meeting.Features.ScreenShare = *req.ScreenShare
	}
	if req.Recording != nil {
		meeting.Features.Recording = *req.Recording
	}
	if req.Instant {
		if err := meeting.Start(time.Now()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		meeting.Audit(domain.AuditMeetingStarted, identity.UserID, nil)
	}

	if err := h.store.Meetings.Create(c.Request.Context(), meeting); err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("meeting create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("meeting", string(meeting.ID)).Str("creator", string(identity.UserID)).Bool("instant", req.Instant).Msg("meeting created")
	c.JSON(http.StatusCreated, meeting)
}

// loadOwned fetches a meeting and enforces tenant scope.
func (h *Handler) loadOwned(c *gin.Context) (*domain.Meeting, bool) {
	identity := identityFrom(c)
	meeting, err := h.store.Meetings.GetByID(c.Request.Context(), domain.MeetingID(c.Param("id")))
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		} else {
			log.Error().Str("module", "adapters.http").Err(err).Msg("meeting load failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return nil, false
	}
	if meeting.TenantID != identity.TenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return nil, false
	}
	return meeting, true
}

func (h *Handler) GetMeeting(c *gin.Context) {
	meeting, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, meeting)
}

func (h *Handler) ListMeetings(c *gin.Context) {
	identity := identityFrom(c)
	meetings, err := h.store.Meetings.ListByTenant(c.Request.Context(), identity.TenantID)
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("meeting list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings})
}

// CancelMeeting cancels a not-yet-terminal meeting. Only the creator or a
// platform admin may cancel.
func (h *Handler) CancelMeeting(c *gin.Context) {
	meeting, ok := h.loadOwned(c)
	if !ok {
		return
	}
	identity := identityFrom(c)
	if identity.UserID != meeting.CreatorID && identity.Role != domain.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}
	if err := meeting.Cancel(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	meeting.Audit(domain.AuditMeetingCancelled, identity.UserID, nil)
	if err := h.store.Meetings.Update(c.Request.Context(), meeting); err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("meeting cancel persist failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("meeting", string(meeting.ID)).Str("by", string(identity.UserID)).Msg("meeting cancelled")
	c.JSON(http.StatusOK, meeting)
}

// ListMessages returns recent chat history for a meeting the caller can see.
func (h *Handler) ListMessages(c *gin.Context) {
	meeting, ok := h.loadOwned(c)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := h.delivery.History(c.Request.Context(), meeting.ID, limit)
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("history load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// ListRooms reports the rooms live on this instance.
func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.rooms.List()})
}

// Health reports process liveness plus a snapshot of media resources.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"media":   h.orch.Snapshot(),
		"workers": h.orch.Workers(),
	})
}
