package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/docchat/internal/domain"
)

// OwnerHeader carries the id of the authenticated user on every API call.
const OwnerHeader = "X-Owner-ID"

const ownerKey = "owner_id"

// Auth returns an API key authentication middleware
func Auth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip auth if no API key configured
		if apiKey == "" {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			auth := c.GetHeader("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}

// Owner requires the owner header and scopes the request context to it, so
// every record lookup downstream only sees that owner's data.
func Owner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "owner required"})
			return
		}

		c.Set(ownerKey, owner)
		c.Request = c.Request.WithContext(domain.WithOwner(c.Request.Context(), owner))
		c.Next()
	}
}

// OwnerID returns the owner set by Owner.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
