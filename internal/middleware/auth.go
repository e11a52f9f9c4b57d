package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/status"
)

// AccountIDKey is the gin context key holding the authenticated account id.
const AccountIDKey = "userID"

// TokenValidator resolves a session token to the account id it was issued for.
type TokenValidator interface {
	Validate(raw string) (string, error)
}

// AuthMiddleware validates the bearer token in the Authorization header.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "missing authorization")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header")
			return
		}

		accountID, err := tokens.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(AccountIDKey, accountID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": status.Unauthorized, "message": message})
}
