package middlewares

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Limiter decides whether one more request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimiter is a fixed-window limiter kept in process memory. Buckets live in
// a bounded LRU whose entries expire with their window, so idle clients cost nothing.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	clients *expirable.LRU[string, *clientBucket]
	now     func() time.Time
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

const maxTrackedClients = 10_000

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: expirable.NewLRU[string, *clientBucket](maxTrackedClients, nil, window),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients.Get(key)

	if !ok || now.After(b.windowEnd) {
		rl.clients.Add(key, &clientBucket{
			count:     1,
			windowEnd: now.Add(rl.window),
		})
		return true, 0, nil
	}

	if b.count >= rl.limit {
		return false, b.windowEnd.Sub(now), nil
	}

	b.count++
	return true, 0, nil
}

// RateLimit enforces limiter for a derived key. Limiter errors fail open: an
// unreachable counter store must not take the login endpoint down with it.
func RateLimit(limiter Limiter, keyFn func(*gin.Context) string, onLimited func(route string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = "ip:" + clientIP(c)
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), c.FullPath()+"|"+key)
		if err != nil {
			slog.Default().WarnContext(c.Request.Context(), "rate_limiter_unavailable", "err", err)
			c.Next()
			return
		}

		if !allowed {
			secs := int(retryAfter.Round(time.Second).Seconds())
			if secs < 1 {
				secs = 1
			}

			if onLimited != nil {
				onLimited(c.FullPath())
			}

			c.Header("Retry-After", strconv.Itoa(secs))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})
			return
		}

		c.Next()
	}
}

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return "ip:" + clientIP(c)
}

// For authenticated endpoints: rate limit by userID if available
func KeyByUserOrIP(c *gin.Context) string {
	id, ok := UserIDFromContext(c)

	if ok && id != "" {
		return "user:" + id
	}

	return KeyByIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
