package middleware

import (
	"net/http"

	"settlement-service/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	UserContextKey  = "userID"
	RoleContextKey  = "role"
	EmailContextKey = "email"

	RoleAdmin = "admin"
)

// AuthMiddleware reads identity headers injected by the API gateway, falling back to the
// gateway's cookies.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := headerOrCookie(c, "X-User-ID", "user_id")
		role := headerOrCookie(c, "X-User-Role", "user_role")
		email := headerOrCookie(c, "X-User-Email", "user_email")

		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(UserContextKey, userID)
		c.Set(RoleContextKey, role)
		c.Set(EmailContextKey, email)
		c.Next()
	}
}

func headerOrCookie(c *gin.Context, header, cookie string) string {
	if v := c.GetHeader(header); v != "" {
		return v
	}
	if v, err := c.Cookie(cookie); err == nil {
		return v
	}
	return ""
}

// GetUserID extracts the caller's id set by AuthMiddleware.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetString(UserContextKey)
	if raw == "" {
		return uuid.Nil, apperrors.Validation("Unauthorized")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Validation("Invalid user id")
	}
	return id, nil
}

// AdminOnly restricts access to admin role.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleContextKey) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
			return
		}
		c.Next()
	}
}
