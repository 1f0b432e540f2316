package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimit throttles each client IP to requestsPerMinute with bursts up to
// the same amount. /health is never limited.
func RateLimit(enabled bool, requestsPerMinute int) gin.HandlerFunc {
	if !enabled || requestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newRateLimiter(requestsPerMinute)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		ok, wait := limiter.allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// rateLimiter is a per-key token bucket
type rateLimiter struct {
	perSecond float64
	burst     float64
	now       func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	return &rateLimiter{
		perSecond: float64(requestsPerMinute) / 60,
		burst:     float64(requestsPerMinute),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// allow takes one token for key. When none is left it returns how long
// until the next one.
func (rl *rateLimiter) allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > time.Minute {
		rl.sweep(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[key] = b
	}
	b.tokens = math.Min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.perSecond)
	b.seen = now

	if b.tokens < 1 {
		return false, time.Duration((1 - b.tokens) / rl.perSecond * float64(time.Second))
	}
	b.tokens--
	return true, 0
}

// sweep drops buckets that have refilled completely
func (rl *rateLimiter) sweep(now time.Time) {
	full := time.Duration(rl.burst / rl.perSecond * float64(time.Second))
	for key, b := range rl.buckets {
		if now.Sub(b.seen) >= full {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}
