package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientWindow tracks request counts from one IP
type clientWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter applies a fixed-window per-IP request limit. It guards
// the screener endpoint, whose on-demand fallback can reach upstream.
type RateLimiter struct {
	mu           sync.RWMutex
	windows      map[string]*clientWindow
	maxRequests  int
	windowPeriod time.Duration
}

// Global screener rate limiter instance
var screenerRateLimiter *RateLimiter

// InitScreenerRateLimiter initializes the global screener rate limiter
func InitScreenerRateLimiter() {
	screenerRateLimiter = NewRateLimiter(60, time.Minute)
	// Start cleanup goroutine
	go screenerRateLimiter.startCleanup()
}

// NewRateLimiter creates a new rate limiter
// maxRequests: requests allowed per IP within the window
// windowPeriod: length of the counting window
func NewRateLimiter(maxRequests int, windowPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:      make(map[string]*clientWindow),
		maxRequests:  maxRequests,
		windowPeriod: windowPeriod,
	}
}

// Allow records a request and reports whether it is within the limit.
// retryAfter is meaningful only when allowed is false.
func (rl *RateLimiter) Allow(ip string) (allowed bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[ip]
	if !ok || now.Sub(w.FirstAt) >= rl.windowPeriod {
		rl.windows[ip] = &clientWindow{Count: 1, FirstAt: now}
		return true, 0
	}

	w.Count++
	if w.Count > rl.maxRequests {
		return false, rl.windowPeriod - now.Sub(w.FirstAt)
	}
	return true, 0
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, w := range rl.windows {
		if now.Sub(w.FirstAt) >= rl.windowPeriod {
			delete(rl.windows, ip)
		}
	}
}

// ScreenerRateLimitMiddleware limits screener queries per client IP
func ScreenerRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if screenerRateLimiter == nil {
			c.Next()
			return
		}

		allowed, retryAfter := screenerRateLimiter.Allow(c.ClientIP())
		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many screener requests, slow down",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
