package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"plantops/portal/internal/models"
	"plantops/portal/internal/service"
)

type userResponse struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	NIK       string          `json:"nik"`
	Role      models.Role     `json:"role"`
	Location  models.Location `json:"location,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		NIK:       user.NIK,
		Role:      user.Role,
		Location:  user.Location,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type createUserRequest struct {
	Username string          `json:"username"`
	NIK      string          `json:"nik"`
	Password string          `json:"password"`
	Role     models.Role     `json:"role"`
	Location models.Location `json:"location"`
}

type updateUserRequest struct {
	Username *string          `json:"username"`
	NIK      *string          `json:"nik"`
	Password string           `json:"password"`
	Role     *models.Role     `json:"role"`
	Location *models.Location `json:"location"`
}

// actor is the admin making the request. The guard only lets sessions through, so
// an empty actor never reaches the service with grant rights.
func (h HandlerSet) actor(c *gin.Context) service.Actor {
	cur, ok := h.current(c)
	if !ok {
		return service.Actor{}
	}
	current, _ := cur.Session()
	return service.SessionActor(current)
}

func (h HandlerSet) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, user := range users {
		items = append(items, newUserResponse(user))
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
	})
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Create(c.Request.Context(), h.actor(c), service.CreateUserInput{
		Username: req.Username,
		NIK:      req.NIK,
		Password: req.Password,
		Role:     req.Role,
		Location: req.Location,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": newUserResponse(user)})
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Update(c.Request.Context(), h.actor(c), c.Param("id"), service.UpdateUserInput{
		Username: req.Username,
		NIK:      req.NIK,
		Password: req.Password,
		Role:     req.Role,
		Location: req.Location,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), h.actor(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
