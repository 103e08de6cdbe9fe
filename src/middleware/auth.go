package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/services"
)

// ApiKeyContextKey is the gin context key the resolved key record is stored
// under.
const ApiKeyContextKey = "api_key"

// bearerToken extracts the key from an "Authorization: Bearer <key>" header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// APIKeyAuth authenticates and admits a request in one pass: the key is
// resolved, suspended keys are rejected, and the key's token bucket is
// charged. The resolved record lands in the context for ceiling checks
// downstream.
func APIKeyAuth(keys *services.KeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := keys.Authorize(c.Request.Context(), bearerToken(c))
		if err != nil {
			status := http.StatusUnauthorized
			if services.IsKind(err, services.KindRateLimited) {
				status = http.StatusTooManyRequests
			}
			c.JSON(status, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Set(ApiKeyContextKey, rec)
		c.Next()
	}
}

// AdminOnly rejects any key without the admin flag. Must run after
// APIKeyAuth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec := KeyFromContext(c)
		if rec == nil || !rec.IsAdmin {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "admin key required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// KeyFromContext returns the record APIKeyAuth stored, or nil.
func KeyFromContext(c *gin.Context) *models.ApiKey {
	if v, exists := c.Get(ApiKeyContextKey); exists {
		if rec, ok := v.(*models.ApiKey); ok {
			return rec
		}
	}
	return nil
}
