// Package http exposes the REST surface of the meeting core: meeting
// scheduling and lookup, live-room introspection, chat history, health, and
// the WebSocket signaling endpoint.
package http

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/adapters/signal"
	"github.com/campushub/meetcore/internal/config"
	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

const identityKey = "identity"

// SetupRouter wires the REST API and the signaling endpoint. REST handlers
// authenticate through the middleware; the WS endpoint verifies the token
// itself during the upgrade.
func SetupRouter(cfg *config.Config, verifier core.TokenVerifier, h *Handler, ws *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Authorization", "Content-Type", "Origin", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "HEAD", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/ws", ws.HandleWS)

	authed := api.Group("")
	authed.Use(authMiddleware(verifier))
	authed.POST("/meetings", h.CreateMeeting)
	authed.GET("/meetings", h.ListMeetings)
	authed.GET("/meetings/:id", h.GetMeeting)
	authed.POST("/meetings/:id/cancel", h.CancelMeeting)
	authed.GET("/meetings/:id/messages", h.ListMessages)
	authed.GET("/rooms", h.ListRooms)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// authMiddleware verifies the caller's token and stores the identity on the
// request context.
func authMiddleware(verifier core.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(domain.Identity)
	return id
}
