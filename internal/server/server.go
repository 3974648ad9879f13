package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"plantops/portal/internal/config"
	"plantops/portal/internal/middleware"
)

// Routes mounts the portal's handlers. handlers.HandlerSet implements it.
type Routes interface {
	Register(router *gin.RouterGroup)
	// Fallback serves paths no route matches.
	Fallback() gin.HandlersChain
}

// HTTPServer is the portal's gin engine behind a net/http server.
type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
}

func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, routes Routes) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log, "/healthz"),
		middleware.Recovery(log),
		middleware.CORS(cfg.AllowCORSOrigins),
		middleware.Device(cfg.Security, log),
	)
	engine.NoRoute(routes.Fallback()...)
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method_not_allowed"})
	})

	routes.Register(&engine.RouterGroup)

	return &HTTPServer{
		engine: engine,
		server: &http.Server{
			Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
			Handler:      engine,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
		log: log,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("portal listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("portal draining connections")
	return s.server.Shutdown(ctx)
}
