package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"plantops/portal/internal/config"
	"plantops/portal/internal/middleware"
)

type pingRoutes struct{}

func (pingRoutes) Register(router *gin.RouterGroup) {
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.DeviceID(c))
	})
}

func (pingRoutes) Fallback() gin.HandlersChain {
	return gin.HandlersChain{func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	}}
}

func newTestServer() *HTTPServer {
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{
		Environment: "test",
		HTTP:        config.HTTPConfig{Host: "127.0.0.1", Port: 0},
		Security: config.SecurityConfig{
			DeviceSecret: "server-secret",
			DeviceCookie: "plantops_device",
			DeviceTTL:    time.Hour,
		},
	}
	return NewHTTPServer(cfg, zerolog.Nop(), pingRoutes{})
}

func TestMiddlewareChain(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String(), "device middleware runs before routes")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestUnknownRoutes(t *testing.T) {
	srv := newTestServer()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1:0", newTestServer().server.Addr)
}
