package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/pkg/response"
)

// RequireRole admits only callers whose token role is one of roles. Must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.GetString(ContextUserRole))
		if role == "" {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !slices.Contains(roles, role) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
