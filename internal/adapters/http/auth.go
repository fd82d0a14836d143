package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetsignal/internal/domain"
)

const (
	sessionUserKey = "user_id"
	sessionRoleKey = "role"
	callerKey      = "caller"

	RoleAdmin = "admin"
)

// Authenticator resolves who is calling. The platform owns identity; this
// service only reads what the platform put in the session.
type Authenticator interface {
	ResolveCaller(c *gin.Context) (domain.Caller, error)
}

// SessionAuthenticator reads the caller from the cookie session.
type SessionAuthenticator struct{}

func (SessionAuthenticator) ResolveCaller(c *gin.Context) (domain.Caller, error) {
	s := sessions.Default(c)
	raw, _ := s.Get(sessionUserKey).(string)
	if raw == "" {
		return domain.Caller{}, domain.ErrUnauthenticated
	}
	uid, err := domain.NewUserID(raw)
	if err != nil {
		return domain.Caller{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	role, _ := s.Get(sessionRoleKey).(string)
	return domain.Caller{UserID: uid, Role: role}, nil
}

// TokenAuthenticator accepts "Authorization: Bearer <token>" for tooling.
type TokenAuthenticator struct {
	Token string
}

func (a TokenAuthenticator) ResolveCaller(c *gin.Context) (domain.Caller, error) {
	if a.Token == "" {
		return domain.Caller{}, domain.ErrUnauthenticated
	}
	h := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token != a.Token {
		return domain.Caller{}, domain.ErrUnauthenticated
	}
	return domain.Caller{UserID: "admin-cli", Role: RoleAdmin}, nil
}

// ChainAuthenticator returns the first caller any member resolves.
type ChainAuthenticator []Authenticator

func (ch ChainAuthenticator) ResolveCaller(c *gin.Context) (domain.Caller, error) {
	for _, a := range ch {
		if caller, err := a.ResolveCaller(c); err == nil {
			return caller, nil
		}
	}
	return domain.Caller{}, domain.ErrUnauthenticated
}

// RequireCaller aborts with 401 unless auth resolves a caller.
func RequireCaller(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := auth.ResolveCaller(c)
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("unauthenticated")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthenticated"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireRole must run after RequireCaller.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if callerFrom(c).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Forbidden"})
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) domain.Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(domain.Caller)
	return caller
}

type devSessionRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role"`
}

// devSession writes a session for local testing without the platform.
func devSession(c *gin.Context) {
	var req devSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "InvalidParticipant", "message": err.Error()})
		return
	}
	if _, err := domain.NewUserID(req.UserID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "InvalidParticipant", "message": err.Error()})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionUserKey, req.UserID)
	s.Set(sessionRoleKey, req.Role)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "InternalError"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", req.UserID).Str("role", req.Role).Msg("dev session issued")
	c.JSON(http.StatusOK, gin.H{"success": true, "userId": req.UserID})
}
