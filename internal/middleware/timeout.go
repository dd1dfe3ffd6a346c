package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/response"
)

// Timeout bounds the request context so storage calls give up with the client.
// Long-lived routes such as the WebSocket relay must not use it.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn("Request timed out",
				zap.Duration("timeout", timeout),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path))
			if !c.Writer.Written() {
				response.Error(c, http.StatusGatewayTimeout, "REQUEST_TIMEOUT", "Request timeout")
				c.Abort()
			}
		}
	}
}
