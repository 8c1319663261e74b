package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chathub/internal/observability"
	"chathub/internal/realtime"
)

const (
	ContextUserID   = "userID"
	ContextUserName = "userName"
)

// AuthMiddleware validates the bearer token and stores the caller's id and
// display name in the gin context.
func AuthMiddleware(authenticator realtime.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := observability.TokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		identity, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil || identity.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextUserID, identity.ID)
		c.Set(ContextUserName, identity.Name)
		c.Next()
	}
}
