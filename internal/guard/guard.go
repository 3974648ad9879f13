// Package guard decides, per request, whether the device's session may see the
// requested path, and carries that decision out as gin middleware.
package guard

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"plantops/portal/internal/middleware"
	"plantops/portal/internal/models"
	"plantops/portal/internal/route"
	"plantops/portal/internal/session"
)

const currentKey = "session_current"

var errNoSession = errors.New("no session on request")

// Permissions answers section access for a role. authz.Enforcer implements it.
type Permissions interface {
	AllowsPath(role models.Role, path string) (bool, error)
}

type Outcome int

const (
	Render Outcome = iota
	Wait
	RedirectLogin
	RedirectHome
	Forbid
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Wait:
		return "wait"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case Forbid:
		return "forbid"
	default:
		return "unknown"
	}
}

type Decision struct {
	Outcome Outcome
	// Path is the redirect target for RedirectLogin and RedirectHome.
	Path string
}

type Config struct {
	LoginPath             string
	RedirectAuthenticated bool
	RetryAfter            time.Duration
	// PublicPaths render in every state. The login path is always public.
	PublicPaths []string
}

type Guard struct {
	sessions *session.Manager
	perms    Permissions
	cfg      Config
	public   map[string]bool
	log      zerolog.Logger
}

func New(sessions *session.Manager, perms Permissions, cfg Config, log zerolog.Logger) *Guard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = sessions.LoginPath()
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 5 * time.Second
	}
	public := map[string]bool{cfg.LoginPath: true}
	for _, path := range cfg.PublicPaths {
		public[path] = true
	}
	return &Guard{sessions: sessions, perms: perms, cfg: cfg, public: public, log: log}
}

// Decide maps the session state and requested path to what the client sees.
// Submissions to the login path are never redirected away.
func (g *Guard) Decide(cur *session.Current, method, path string) (Decision, error) {
	if cur.State() == session.StateLoading {
		return Decision{Outcome: Wait}, nil
	}

	current, authenticated := cur.Session()
	if path == g.cfg.LoginPath {
		if authenticated && g.cfg.RedirectAuthenticated && (method == http.MethodGet || method == http.MethodHead) {
			return Decision{Outcome: RedirectHome, Path: route.Resolve(current.Role)}, nil
		}
		return Decision{Outcome: Render}, nil
	}
	if g.public[path] {
		return Decision{Outcome: Render}, nil
	}
	if !authenticated {
		return Decision{Outcome: RedirectLogin, Path: g.cfg.LoginPath}, nil
	}

	allowed, err := g.perms.AllowsPath(current.Role, path)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		return Decision{Outcome: Forbid}, nil
	}
	return Decision{Outcome: Render}, nil
}

// Middleware restores the device session, decides, and either aborts or hands the
// restored *session.Current to the next handler.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := middleware.DeviceID(c)
		cur := g.sessions.Open(deviceID)
		if err := g.sessions.Restore(c.Request.Context(), cur); err != nil {
			g.log.Error().Err(err).Str("device_id", deviceID).Msg("session restore failed")
		}

		path := c.Request.URL.Path
		decision, err := g.Decide(cur, c.Request.Method, path)
		if err != nil {
			g.log.Error().Err(err).Str("path", path).Msg("capability check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}

		c.Set(middleware.GuardOutcomeKey, decision.Outcome.String())
		switch decision.Outcome {
		case Wait:
			c.Header("Retry-After", strconv.Itoa(int(g.cfg.RetryAfter.Seconds())))
			c.AbortWithStatus(http.StatusServiceUnavailable)
		case RedirectLogin:
			respondRedirect(c, http.StatusUnauthorized, decision.Path)
			c.Abort()
		case RedirectHome:
			respondRedirect(c, http.StatusOK, decision.Path)
			c.Abort()
		case Forbid:
			g.log.Debug().Str("device_id", deviceID).Str("path", path).Msg("section denied")
			c.AbortWithStatus(http.StatusForbidden)
		default:
			c.Set(currentKey, cur)
			c.Next()
		}
	}
}

// Current returns the session the guard restored for this request.
func Current(c *gin.Context) (*session.Current, error) {
	value, ok := c.Get(currentKey)
	if !ok {
		return nil, errNoSession
	}
	cur, ok := value.(*session.Current)
	if !ok {
		return nil, errNoSession
	}
	return cur, nil
}

type navigator struct {
	c *gin.Context
}

// Navigator answers a navigation with 303 See Other, or with a JSON
// {"redirect": path} body for clients that asked for JSON. It also reissues the
// device cookie when login moves the client to a new device id.
func Navigator(c *gin.Context) session.Navigator {
	return navigator{c: c}
}

func (n navigator) Navigate(path string) {
	respondRedirect(n.c, http.StatusOK, path)
}

func (n navigator) BindDevice(deviceID string) error {
	return middleware.RebindDevice(n.c, deviceID)
}

func respondRedirect(c *gin.Context, jsonStatus int, path string) {
	if WantsJSON(c) {
		c.JSON(jsonStatus, gin.H{"redirect": path})
		return
	}
	c.Redirect(http.StatusSeeOther, path)
}

// WantsJSON reports whether the client prefers JSON over an HTML redirect.
func WantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		return true
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}
