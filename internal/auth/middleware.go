package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
)

const claimsKey = "claims"

// Bearer enforces bearer JWT tokens signed with HS256 and stores the caller's
// claims on the request context.
func Bearer(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose token role is not in the allowed set.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		actor := CallerFrom(c)
		if !allowed[actor.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// CallerFrom extracts the authenticated actor from the request context. Zero
// value when unauthenticated.
func CallerFrom(c *gin.Context) attendance.Actor {
	claimsAny, ok := c.Get(claimsKey)
	if !ok {
		return attendance.Actor{}
	}
	claims, ok := claimsAny.(Claims)
	if !ok {
		return attendance.Actor{}
	}
	return attendance.Actor{ID: claims.Subject, Role: claims.Role}
}
