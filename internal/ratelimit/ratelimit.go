// Package ratelimit implements the per-IP request throttle supplemented from
// original_source/'s rate_limit_middleware.rs: INCR a per-IP Redis counter,
// EXPIRE it 60s the first time it's seen, and reject once the count exceeds
// a fixed ceiling. Grounded on internal/delayscheduler's go-redis v9
// connection idiom for the client itself.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Window and Limit match the original: a fixed 60-second window, started by
// the first request, capped at 20 requests per IP.
const (
	Window = 60 * time.Second
	Limit  = 20
)

const keyPrefix = "rate_limit:"

// Limiter throttles requests by client IP using a Redis counter.
type Limiter struct {
	client *redis.Client
	logger *slog.Logger
}

// New builds a Limiter against a redis connection URL. A bad URL is not
// fatal here — Middleware fails open on any Redis error, the same contract
// as the original so a Redis outage never takes the API down with it.
func New(url string, logger *slog.Logger) *Limiter {
	l := &Limiter{logger: logger}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Error("ratelimit: parse redis url, limiter disabled", "error", err)
		return l
	}
	l.client = redis.NewClient(opts)
	return l
}

// Middleware rejects a request with 429 once its client IP has exceeded
// Limit requests within Window. Any Redis error — including an unreachable
// server — fails open and lets the request through, matching the original's
// deliberate choice to prioritize availability over strict enforcement.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.client == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := keyPrefix + c.ClientIP()

		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			l.logger.Warn("ratelimit: redis error, failing open", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			if err := l.client.Expire(ctx, key, Window).Err(); err != nil {
				l.logger.Warn("ratelimit: failed to set expiry, failing open", "error", err)
			}
		}

		if count > Limit {
			c.AbortWithStatusJSON(429, gin.H{"error": fmt.Sprintf("rate limit exceeded: max %d requests per %s", Limit, Window)})
			return
		}

		c.Next()
	}
}
