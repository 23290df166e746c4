package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sync-admin/pkg/metrics"
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	WindowSeconds     int
	Enabled           bool
}

// fixedWindow counts requests per key and starts the window on the first hit.
var fixedWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
end
return count
`)

// RateLimiter is a fixed-window limiter kept in Redis, keyed by route and
// client IP.
type RateLimiter struct {
	client  redis.Scripter
	config  RateLimiterConfig
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRateLimiter creates a rate limiter. A nil client disables limiting.
func NewRateLimiter(client redis.Scripter, config RateLimiterConfig, log *zap.Logger, m *metrics.Metrics) *RateLimiter {
	if m == nil {
		m = metrics.New(nil)
	}
	if config.WindowSeconds < 1 {
		config.WindowSeconds = 1
	}
	return &RateLimiter{
		client:  client,
		config:  config,
		log:     log,
		metrics: m,
	}
}

// maxRequests is the number of requests allowed per window, at least one.
func (rl *RateLimiter) maxRequests() int64 {
	n := int64(rl.config.RequestsPerSecond * float64(rl.config.WindowSeconds))
	if n < 1 {
		return 1
	}
	return n
}

// Middleware returns the gin handler. It fails open on Redis errors.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || !rl.config.Enabled || rl.client == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := fmt.Sprintf("ratelimit:%s:%s:%s", c.Request.Method, route, c.ClientIP())

		count, err := fixedWindow.Run(c.Request.Context(), rl.client, []string{key}, rl.config.WindowSeconds).Int64()
		if err != nil {
			rl.log.Warn("rate limiter redis error, allowing request",
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		limit := rl.maxRequests()
		if count > limit {
			rl.metrics.RateLimitedTotal.Inc()
			rl.log.Debug("rate limit exceeded",
				zap.String("key", key),
				zap.Int64("count", count),
				zap.Int64("limit", limit),
			)
			c.Header("Retry-After", fmt.Sprint(rl.config.WindowSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": fmt.Sprintf("Rate limit exceeded: %d requests per %ds", limit, rl.config.WindowSeconds),
			})
			return
		}

		c.Next()
	}
}
