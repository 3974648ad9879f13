package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"plantops/portal/internal/guard"
	"plantops/portal/internal/models"
	"plantops/portal/internal/route"
)

type loginRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
}

type sessionResponse struct {
	ID         string          `json:"id"`
	Username   string          `json:"username"`
	NIK        string          `json:"nik"`
	Role       models.Role     `json:"role"`
	Location   models.Location `json:"location,omitempty"`
	Home       string          `json:"home"`
	Sections   []route.Section `json:"sections"`
	LoggedInAt time.Time       `json:"loggedInAt"`
}

func (h HandlerSet) sessionResponse(s models.Session) sessionResponse {
	return sessionResponse{
		ID:         s.UserID,
		Username:   s.Username,
		NIK:        s.NIK,
		Role:       s.Role,
		Location:   s.Location,
		Home:       route.Resolve(s.Role),
		Sections:   h.perms.Sections(s.Role),
		LoggedInAt: s.LoggedInAt,
	}
}

func (h HandlerSet) Home(c *gin.Context) {
	cur, ok := h.current(c)
	if !ok {
		return
	}
	current, _ := cur.Session()
	guard.Navigator(c).Navigate(route.Resolve(current.Role))
}

func (h HandlerSet) LoginPage(c *gin.Context) {
	cur, ok := h.current(c)
	if !ok {
		return
	}

	resp := gin.H{
		"page":          "login",
		"authenticated": false,
	}
	if current, ok := cur.Session(); ok {
		resp["authenticated"] = true
		resp["home"] = route.Resolve(current.Role)
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) Login(c *gin.Context) {
	cur, ok := h.current(c)
	if !ok {
		return
	}

	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sessions.Login(c.Request.Context(), cur, guard.Navigator(c), req.Identifier, req.Password); err != nil {
		h.writeError(c, err)
	}
}

func (h HandlerSet) Logout(c *gin.Context) {
	cur, ok := h.current(c)
	if !ok {
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), cur, guard.Navigator(c)); err != nil {
		h.writeError(c, err)
	}
}

func (h HandlerSet) Me(c *gin.Context) {
	cur, ok := h.current(c)
	if !ok {
		return
	}
	current, ok := cur.Session()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": h.sessionResponse(current),
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" form:"oldPassword"`
	NewPassword string `json:"newPassword" form:"newPassword"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	cur, ok := h.current(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.ChangeOwnPassword(c.Request.Context(), cur, guard.Navigator(c), req.OldPassword, req.NewPassword); err != nil {
		h.writeError(c, err)
	}
}
