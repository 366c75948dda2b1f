package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	redisStore "surplus-ledger/internal/adapter/storage/redis"
	"surplus-ledger/pkg/apperror"
	"surplus-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"wallet_read":  {Limit: 120, Window: time.Minute},
		"wallet_write": {Limit: 20, Window: time.Minute},
		"baskets":      {Limit: 30, Window: time.Minute},
		"merchant":     {Limit: 60, Window: time.Minute},
		"withdrawals":  {Limit: 10, Window: time.Minute},
		"admin":        {Limit: 120, Window: time.Minute},
	}
}

// CounterStore is the shared fixed-window counter, Redis in production.
type CounterStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redisStore.RateLimitResult, error)
}

// LocalLimiter is a per-process token bucket per key, used when no shared
// counter is configured or while it is unreachable.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewLocalLimiter creates a limiter refilling rps tokens per second up to burst.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow takes one token for key.
func (l *LocalLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// store may be nil; local may be nil. With neither, requests pass.
func RateLimiter(store CounterStore, local *LocalLimiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		if store != nil {
			result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
			if err == nil {
				c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
				c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
				c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

				if !result.Allowed {
					retryAfter := max(result.ResetAt-time.Now().Unix(), 1)
					c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
					reject(c)
					return
				}
				c.Next()
				return
			}
			log.Warn().Err(err).Str("group", group).Msg("rate limit store failed, using local limiter")
		}

		if local != nil && !local.Allow(key) {
			c.Header("Retry-After", "1")
			reject(c)
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context) {
	response.Error(c, apperror.ErrRateLimitExceeded())
	c.Abort()
}

// extractIdentifier keys limits by user when authenticated, else by client IP.
func extractIdentifier(c *gin.Context) string {
	if id, ok := UserID(c); ok {
		return id.String()
	}
	return c.ClientIP()
}
