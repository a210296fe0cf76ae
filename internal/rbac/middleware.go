package rbac

import (
	"net/http"

	"triage-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireCounselor enforces that the caller is a person with a counselor id.
// Service roles cannot hold claims or file reports.
func RequireCounselor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.CounselorID(c.Request.Context())
		if err != nil || id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "counselor identity required", "code": "unauthorized"})
			return
		}
		if role, _ := auth.Role(c.Request.Context()); IsServiceRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - supervisor bypasses all checks
// - service roles are denied unless explicitly allowed
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required", "code": "unauthorized"})
			return
		}

		if IsSupervisor(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
			return
		}
		c.Next()
	}
}
