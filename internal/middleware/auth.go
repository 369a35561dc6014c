package middleware

import (
	"crypto/subtle"
	"net/http"
	"unlock-api/internal/config"
	"unlock-api/internal/response"

	"github.com/gin-gonic/gin"
)

// APIKeyAuthMiddleware authenticates client API calls with the shared API
// key. Gateway webhook routes are authenticated by signature verification
// instead and must not be placed behind this middleware.
func APIKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := config.AppConfig.ClientAPIKey
		if expected == "" {
			// No key configured (development); allow through.
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, response.Error("Missing api_key"))
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
			c.JSON(http.StatusUnauthorized, response.Error("Invalid api_key"))
			c.Abort()
			return
		}

		c.Next()
	}
}
