package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// GuardOutcomeKey is where the navigation guard leaves its decision for the access log.
const GuardOutcomeKey = "guard_outcome"

// Logger writes one access line per request. Health checks only show up at debug level.
func Logger(log zerolog.Logger, quietPaths ...string) gin.HandlerFunc {
	quiet := make(map[string]bool, len(quietPaths))
	for _, path := range quietPaths {
		quiet[path] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400 && status != 401 && status != 403:
			event = log.Warn()
		case quiet[c.FullPath()]:
			event = log.Debug()
		default:
			event = log.Info()
		}

		event = event.
			Str("request_id", RequestIDFrom(c)).
			Str("device_id", DeviceID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start))
		if outcome := c.GetString(GuardOutcomeKey); outcome != "" {
			event = event.Str("guard", outcome)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("request")
	}
}
