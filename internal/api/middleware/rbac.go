package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// RequireRole returns middleware that checks the authenticated operator
// holds role, or the "operator:admin" super-role. Operator roles are flat
// (viewer / approver / admin) rather than bound to individual resources:
// PDSNO's approval tiering already scopes who may approve a given
// configuration request by controller role, so the dashboard only
// needs to gate which actions an operator's session is allowed to attempt
// at all, not per-device or per-region ownership.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, exists := c.Get("roles")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": "FORBIDDEN", "message": "no roles in context",
			})
			return
		}
		roleList, ok := roles.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": "FORBIDDEN", "message": "invalid roles type",
			})
			return
		}

		if slices.Contains(roleList, "operator:admin") || slices.Contains(roleList, role) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code": "FORBIDDEN", "message": "insufficient role",
		})
	}
}

// RequireAnyRole returns middleware that allows the request if the
// authenticated operator holds any one of roles, or "operator:admin".
func RequireAnyRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		held, exists := c.Get("roles")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": "FORBIDDEN", "message": "no roles in context",
			})
			return
		}
		heldList, ok := held.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": "FORBIDDEN", "message": "invalid roles type",
			})
			return
		}

		if slices.Contains(heldList, "operator:admin") {
			c.Next()
			return
		}
		for _, want := range roles {
			if slices.Contains(heldList, want) {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code": "FORBIDDEN", "message": "insufficient role",
		})
	}
}
