package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"plantops/portal/internal/authz"
	"plantops/portal/internal/guard"
	"plantops/portal/internal/repository"
	"plantops/portal/internal/service"
	"plantops/portal/internal/session"
)

// Pinger checks one backend for /healthz.
type Pinger struct {
	Name string
	Ping func(ctx context.Context) error
}

type HandlerSet struct {
	log         zerolog.Logger
	environment string
	sessions    *session.Manager
	users       *service.UserService
	perms       *authz.Enforcer
	guard       *guard.Guard
	pingers     []Pinger
}

func NewHandlerSet(
	log zerolog.Logger,
	environment string,
	sessions *session.Manager,
	users *service.UserService,
	perms *authz.Enforcer,
	g *guard.Guard,
	pingers ...Pinger,
) HandlerSet {
	return HandlerSet{
		log:         log,
		environment: environment,
		sessions:    sessions,
		users:       users,
		perms:       perms,
		guard:       g,
		pingers:     pingers,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	portal := router.Group("")
	portal.Use(h.guard.Middleware())
	{
		portal.GET("/", h.Home)
		portal.GET(h.sessions.LoginPath(), h.LoginPage)
		portal.POST(h.sessions.LoginPath(), h.Login)
		portal.POST("/logout", h.Logout)
		portal.GET("/me", h.Me)
		portal.POST("/me/password", h.ChangePassword)

		admin := portal.Group("/admin")
		admin.GET("/dashboard", h.Page)
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.PUT("/users/:id", h.UpdateUser)
		admin.DELETE("/users/:id", h.DeleteUser)

		portal.GET("/dashboard", h.Page)
		portal.GET("/plant/:page", h.Page)
		portal.GET("/karyawan/:page", h.Page)
	}
}

// Fallback handles paths no route matches. They still pass the guard, so an
// anonymous client is sent to the login page instead of learning what exists.
func (h HandlerSet) Fallback() gin.HandlersChain {
	return gin.HandlersChain{h.guard.Middleware(), h.NotFound}
}

func (h HandlerSet) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
}

// current fetches the guard's session or answers 401.
func (h HandlerSet) current(c *gin.Context) (*session.Current, bool) {
	cur, err := guard.Current(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return cur, true
}

func (h HandlerSet) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRoleNotGrantable):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicateIdentifier):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
