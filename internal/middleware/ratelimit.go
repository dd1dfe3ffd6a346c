package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"echowaves-backend/internal/database"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/response"
)

// RateLimiter implements Redis-based fixed window rate limiting
type RateLimiter struct {
	redis    *database.RedisClient
	requests int
	window   time.Duration
	prefix   string
}

// NewRateLimiter creates a limiter allowing requests per window. prefix
// separates the counters of different routes.
func NewRateLimiter(redis *database.RedisClient, prefix string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:    redis,
		requests: requests,
		window:   window,
		prefix:   prefix,
	}
}

// Middleware returns a Gin middleware for rate limiting. It fails open when
// Redis is unavailable.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID := c.GetInt64("user_id"); userID != 0 {
			identifier = fmt.Sprintf("user:%d", userID)
		}

		count, ttl, err := rl.hit(c.Request.Context(), identifier)
		if err != nil {
			logger.Warn("Rate limit check skipped", zap.String("identifier", identifier), zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if count > int64(rl.requests) {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// hit counts one request in the current window and returns the count and the
// time left in the window
func (rl *RateLimiter) hit(ctx context.Context, identifier string) (int64, time.Duration, error) {
	if rl.redis.IsDegraded() {
		return 0, 0, database.ErrRedisDegraded
	}
	key := fmt.Sprintf("ratelimit:%s:%s", rl.prefix, identifier)

	pipe := rl.redis.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rl.window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to count request: %w", err)
	}

	left := ttl.Val()
	if left < 0 {
		left = rl.window
	}
	return incr.Val(), left, nil
}
