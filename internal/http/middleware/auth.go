// README: Auth middleware: verifies Firebase ID tokens and stores caller identity on the context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"plow/internal/infra"
)

const (
	ctxCallerUID  = "caller_uid"
	ctxCallerRole = "caller_role"

	// Roles carried in the "role" custom claim.
	RoleClient   = "client"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Auth rejects requests without a valid "Bearer <Firebase ID token>" header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "unauthenticated"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "unauthenticated"})
			return
		}
		role, _ := token.Claims["role"].(string)
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxCallerRole, role)
		c.Next()
	}
}

// DevAuth trusts the X-Plow-User and X-Plow-Role headers. Local runs only.
func DevAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader("X-Plow-User"))
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-Plow-User", "kind": "unauthenticated"})
			return
		}
		c.Set(ctxCallerUID, uid)
		c.Set(ctxCallerRole, strings.TrimSpace(c.GetHeader("X-Plow-Role")))
		c.Next()
	}
}

// CallerUID returns the authenticated user ID, or "" before Auth ran.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

// CallerRole returns the role claim, or "" when the token has none.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxCallerRole)
}
