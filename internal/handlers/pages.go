package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"plantops/portal/internal/route"
)

// Page describes a protected screen. Rendering lives in the front end; the guard
// has already checked the section by the time this runs.
func (h HandlerSet) Page(c *gin.Context) {
	cur, ok := h.current(c)
	if !ok {
		return
	}
	current, _ := cur.Session()

	c.JSON(http.StatusOK, gin.H{
		"page":    c.Request.URL.Path,
		"section": route.SectionOf(c.Request.URL.Path),
		"user":    h.sessionResponse(current),
	})
}
