package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"plantops/portal/internal/config"
	"plantops/portal/internal/ids"
	"plantops/portal/internal/security"
)

const (
	deviceIDKey     = "device_id"
	deviceIssuerKey = "device_issuer"
)

var errNoDeviceIssuer = errors.New("device middleware not installed")

type deviceIssuer func(c *gin.Context, deviceID string) error

// Device identifies the client by a signed device cookie, issuing a fresh device id
// when the cookie is missing or does not verify. The device id scopes the client's
// session storage.
func Device(cfg config.SecurityConfig, log zerolog.Logger) gin.HandlerFunc {
	issue := deviceIssuer(func(c *gin.Context, deviceID string) error {
		token, err := security.GenerateDeviceToken(cfg.DeviceSecret, deviceID, cfg.DeviceTTL)
		if err != nil {
			return err
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.DeviceCookie, token, int(cfg.DeviceTTL.Seconds()), "/", "", cfg.SecureCookie, true)
		c.Set(deviceIDKey, deviceID)
		return nil
	})

	return func(c *gin.Context) {
		c.Set(deviceIssuerKey, issue)

		if raw, err := c.Cookie(cfg.DeviceCookie); err == nil && raw != "" {
			claims, err := security.ParseDeviceToken(raw, cfg.DeviceSecret)
			if err == nil && ids.Valid(claims.DeviceID) {
				c.Set(deviceIDKey, claims.DeviceID)
				c.Next()
				return
			}
			log.Debug().Err(err).Str("request_id", RequestIDFrom(c)).Msg("replacing device cookie")
		}

		if err := issue(c, ids.New()); err != nil {
			log.Error().Err(err).Msg("issue device token failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}
		c.Next()
	}
}

// DeviceID returns the id Device assigned to the request.
func DeviceID(c *gin.Context) string {
	return c.GetString(deviceIDKey)
}

// RebindDevice switches the request to deviceID and sends the client a cookie for
// it. It must run before the response body is written.
func RebindDevice(c *gin.Context, deviceID string) error {
	value, ok := c.Get(deviceIssuerKey)
	if !ok {
		return errNoDeviceIssuer
	}
	issue, ok := value.(deviceIssuer)
	if !ok {
		return errNoDeviceIssuer
	}
	return issue(c, deviceID)
}
