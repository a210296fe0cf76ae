package auth

import (
	"net/http"
	"strings"
	"time"

	"triage-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// RequireAccessToken verifies an access token, rejects revoked ones and
// injects identity into the request context. RBAC belongs to internal/rbac.
// revoked may be nil.
func RequireAccessToken(m *Manager, revoked RevocationList) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthorized"})
			return
		}
		tok := strings.TrimPrefix(raw, bearerPrefix)

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
			return
		}

		if revoked != nil {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				logger.FromGin(c).Error("revocation lookup failed", "err", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable", "code": "unavailable"})
				return
			}
			if isRevoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked", "code": "unauthorized"})
				return
			}
		}

		ctx := WithIdentity(c.Request.Context(), claims.CounselorID, claims.Role)
		ctx = WithToken(ctx, claims.ID, claims.ExpiresAt.Time)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("counselor_id", claims.CounselorID)
		c.Set("role", claims.Role)

		c.Next()
	}
}
