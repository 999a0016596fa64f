package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window per-key request counter guarding the token
// endpoint against brute forcing of the operator token.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string]*requestWindow
	limit    int
	window   time.Duration
	now      func() time.Time
}

type requestWindow struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*requestWindow),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow reports whether key has budget left in the current window, and
// consumes one request if so. Expired windows are pruned as they are seen.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, w := range rl.requests {
		if now.After(w.resetAt) {
			delete(rl.requests, k)
		}
	}

	w, exists := rl.requests[key]
	if !exists {
		rl.requests[key] = &requestWindow{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// RateLimit rejects requests from clients over their per-IP budget.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
