package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/seatserve/backend/services/common/auth"
)

const (
	StaffContextKey = "staffID"
	RoleContextKey  = "role"
	EmailContextKey = "email"
)

// AuthMiddleware identifies the staff member behind a request. A bearer
// token is verified when present; otherwise the identity headers set by the
// edge proxy are trusted. Cookies are client controlled and never carry
// identity here.
func AuthMiddleware(verifier *auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authz := c.GetHeader("Authorization"); strings.HasPrefix(authz, "Bearer ") {
			claims, err := verifier.Parse(strings.TrimPrefix(authz, "Bearer "), "access")
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set(StaffContextKey, claims.Subject)
			c.Set(RoleContextKey, claims.Role)
			c.Set(EmailContextKey, claims.Email)
			c.Next()
			return
		}

		staffID := c.GetHeader("X-User-ID")
		if staffID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(StaffContextKey, staffID)
		c.Set(RoleContextKey, c.GetHeader("X-User-Role"))
		c.Set(EmailContextKey, c.GetHeader("X-User-Email"))
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleContextKey) != auth.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// StaffID returns the authenticated staff identifier, or "" when the
// request did not pass AuthMiddleware.
func StaffID(c *gin.Context) string {
	return c.GetString(StaffContextKey)
}
