package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// WSAuth resolves the optional token query parameter for WebSocket upgrades.
// Browsers cannot set headers on WebSocket requests, so the token travels as
// ?token=. Anonymous connections are allowed; an invalid token is treated as
// anonymous rather than rejected.
func (am *AuthMiddleware) WSAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString != "" {
			tokenString = strings.Replace(tokenString, "Bearer ", "", 1)
			if userID, ok := am.parseToken(tokenString); ok {
				c.Set("user_id", userID)
			}
		}
		c.Next()
	}
}
