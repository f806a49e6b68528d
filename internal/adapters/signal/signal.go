// Package signal is the WebSocket front door: it authenticates the upgrade,
// owns the per-connection read/write pumps and dispatches typed events into
// the session manager, orchestrator and messaging subsystems.
package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/app"
	"github.com/campushub/meetcore/internal/app/media"
	"github.com/campushub/meetcore/internal/app/messaging"
	"github.com/campushub/meetcore/internal/app/rooms"
	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller wires one WebSocket endpoint to the meeting core.
type Controller struct {
	baseCtx    context.Context
	verifier   core.TokenVerifier
	reg        *app.Registry
	rooms      *rooms.Manager
	orch       *media.Orchestrator
	delivery   *messaging.Delivery
	limiter    *messaging.Limiter
	presence   core.PresenceStore
	validate   *validator.Validate
	instanceID string

	// silent names the rate-limited events that are dropped without an
	// error reply; everything else limited gets a visible rejection.
	silent map[string]bool
}

func NewController(
	baseCtx context.Context,
	verifier core.TokenVerifier,
	reg *app.Registry,
	manager *rooms.Manager,
	orch *media.Orchestrator,
	delivery *messaging.Delivery,
	limiter *messaging.Limiter,
	presence core.PresenceStore,
	instanceID string,
) *Controller {
	return &Controller{
		baseCtx:    baseCtx,
		verifier:   verifier,
		reg:        reg,
		rooms:      manager,
		orch:       orch,
		delivery:   delivery,
		limiter:    limiter,
		presence:   presence,
		validate:   validator.New(),
		instanceID: instanceID,
		silent: map[string]bool{
			core.EvTyping:        true,
			core.EvQualityReport: true,
		},
	}
}

// wsConn adapts one gorilla socket to core.SignalConn. Sends are queued on a
// bounded channel; a full queue is backpressure, not a blocked caller.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, send: make(chan core.Frame, 256)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// session is the per-connection state the dispatcher needs: the verified
// identity and the room the connection currently sits in.
type session struct {
	id       core.ConnectionID
	identity domain.Identity
	conn     *wsConn

	mu          sync.Mutex
	meeting     domain.MeetingID
	participant domain.ParticipantID
}

func (s *session) room() (domain.MeetingID, domain.ParticipantID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meeting, s.participant, s.meeting != ""
}

func (s *session) setRoom(meeting domain.MeetingID, pid domain.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meeting = meeting
	s.participant = pid
}

func (s *session) clearRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meeting = ""
	s.participant = ""
}

func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// HandleWS authenticates and upgrades the connection, registers it and runs
// the pumps. Pending offline messages are replayed as soon as the connection
// is registered.
func (ctl *Controller) HandleWS(c *gin.Context) {
	identity, err := ctl.verifier.Verify(c.Request.Context(), bearerToken(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("ws upgrade failed")
		return
	}

	connID := core.ConnectionID(uuid.NewString())
	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctl.baseCtx)
	ctl.reg.Register(connID, identity, conn, cancel)

	if _, err := ctl.presence.SetOnline(ctx, identity.UserID, ctl.instanceID); err != nil {
		log.Warn().Str("module", "signal").Str("user", string(identity.UserID)).Err(err).Msg("presence online failed")
	}

	s := &session{id: connID, identity: identity, conn: conn}
	log.Info().Str("module", "signal").Str("conn", string(connID)).Str("user", string(identity.UserID)).Msg("connection up")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, s)

	ctl.delivery.FlushPending(ctx, identity.UserID, connID)
}
