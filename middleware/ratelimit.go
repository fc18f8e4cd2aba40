package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (e *limiterEntry) touch() *rate.Limiter {
	e.mu.Lock()
	e.lastSeen = time.Now()
	e.mu.Unlock()
	return e.limiter
}

func (e *limiterEntry) idleSince(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen.Before(cutoff)
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByIP charges requests to the client IP.
func ByIP(c *gin.Context) string { return c.ClientIP() }

// ByUser charges authenticated requests to the user and the rest to the IP.
func ByUser(c *gin.Context) string {
	if uid := GetUserID(c); uid != 0 {
		return "u:" + strconv.FormatInt(uid, 10)
	}
	return c.ClientIP()
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimitBy(r, b, ByIP)
}

// RateLimitBy is RateLimit with a custom bucket key.
func RateLimitBy(r rate.Limit, b int, key KeyFunc) gin.HandlerFunc {
	limiters := &sync.Map{}

	// Drop buckets idle for 10 minutes.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-10 * time.Minute)
			limiters.Range(func(k, v interface{}) bool {
				if v.(*limiterEntry).idleSince(cutoff) {
					limiters.Delete(k)
				}
				return true
			})
		}
	}()

	return func(c *gin.Context) {
		v, _ := limiters.LoadOrStore(key(c), &limiterEntry{limiter: rate.NewLimiter(r, b)})
		if !v.(*limiterEntry).touch().Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
