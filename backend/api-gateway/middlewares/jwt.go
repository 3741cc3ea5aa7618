package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/seatserve/backend/services/common/auth"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
)

// JWTMiddleware verifies the staff access token and stores its claims under
// the common middleware context keys so the forwarder can pass them on.
func JWTMiddleware(verifier *auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
				tokenString = "Bearer " + cookie
			}
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			return
		}
		if !strings.HasPrefix(tokenString, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}

		claims, err := verifier.Parse(strings.TrimPrefix(tokenString, "Bearer "), "access")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(middleware.StaffContextKey, claims.Subject)
		c.Set(middleware.RoleContextKey, claims.Role)
		c.Set(middleware.EmailContextKey, claims.Email)
		c.Next()
	}
}
