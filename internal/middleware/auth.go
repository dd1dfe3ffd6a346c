package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"echowaves-backend/pkg/jwt"
	"echowaves-backend/pkg/response"
)

// UserRegistrar mirrors the token's user into the local store
type UserRegistrar interface {
	EnsureUser(ctx context.Context, userID int64, login string) error
}

// AuthMiddleware validates the bearer token and sets user_id, login and role in
// the Gin context. Browsers cannot set headers on a WebSocket handshake, so the
// token is also accepted from the access_token query parameter.
// registrar may be nil.
func AuthMiddleware(jwtManager *jwt.JWTManager, registrar UserRegistrar) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		if registrar != nil {
			if err := registrar.EnsureUser(c.Request.Context(), claims.UserID, claims.Login); err != nil {
				response.FromError(c, err)
				c.Abort()
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("login", claims.Login)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("access_token"); token != "" {
		return token, true
	}
	return "", false
}
