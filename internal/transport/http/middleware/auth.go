package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/reqctx"
)

const errUnauthorized = "Unauthorized"

type accessTokenParser interface {
	ParseAccess(raw string) (domain.Identity, error)
}

// Auth validates a Bearer access token and sets "userID" in the gin context.
// The normalized identity is also stored on the request context so that
// logs carry user_id.
func Auth(tokens accessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		ident, err := tokens.ParseAccess(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil || ident.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Request = c.Request.WithContext(reqctx.WithIdentity(c.Request.Context(), ident))
		c.Set("userID", ident.UserID)
		c.Next()
	}
}
