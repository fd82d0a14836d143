package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetsignal/internal/adapters/signal"
	"github.com/dkeye/meetsignal/internal/app/orch"
	"github.com/dkeye/meetsignal/internal/config"
)

const requestIDKey = "request_id"

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

type Deps struct {
	Orch    *orch.Orchestrator
	Events  *signal.EventStreamController
	Limiter *RateLimiter
	// Auth defaults to the session cookie plus the admin bearer token.
	Auth Authenticator
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("VoiceSessions", store))

	auth := deps.Auth
	if auth == nil {
		auth = ChainAuthenticator{SessionAuthenticator{}, TokenAuthenticator{Token: cfg.AdminToken}}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "meetings": len(deps.Orch.Meetings())})
	})

	api := r.Group("/api")
	if cfg.Mode == "debug" {
		api.POST("/dev/session", devSession)
	}

	authed := api.Group("", RequireCaller(auth))

	gate := NewGate(deps.Orch, deps.Limiter)
	authed.POST("/signaling", gate.Handle)
	authed.GET("/ice-servers", iceServersHandler(cfg))

	if deps.Events != nil {
		authed.GET("/events", func(c *gin.Context) {
			caller := callerFrom(c)
			log.Info().Str("module", "adapters.http").Str("user", string(caller.UserID)).Msg("event stream endpoint hit")
			deps.Events.HandleEvents(ctx, c, caller.UserID)
		})
	}

	admin := &Admin{Orch: deps.Orch}
	adminGroup := authed.Group("/meetings", RequireRole(RoleAdmin))
	adminGroup.GET("", admin.Meetings)
	adminGroup.GET("/:id/participants", admin.Participants)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
