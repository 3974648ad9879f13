package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	Environment string            `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Checks:      make(map[string]string, len(h.pingers)),
		Environment: h.environment,
	}
	for _, pinger := range h.pingers {
		resp.Checks[pinger.Name] = "ok"
		if err := pinger.Ping(ctx); err != nil {
			resp.Checks[pinger.Name] = "error"
			resp.Status = "degraded"
			h.log.Error().Err(err).Str("backend", pinger.Name).Msg("health ping failed")
		}
	}

	c.JSON(http.StatusOK, resp)
}
