package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/campus-tickets/internal/http/response"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	PerMinute int                            // Sustained requests per minute per key
	Burst     int                            // Requests allowed at once
	KeyFunc   func(r *http.Request) []string // Keys to limit on
	SkipFunc  func(r *http.Request) bool     // Skip limiting when true
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key in memory.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   RateLimitConfig
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = 10
	}
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}
	if config.KeyFunc == nil {
		config.KeyFunc = IPKeyFunc
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		config:   config,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				if !rl.Allow(key) {
					logger.WarnContext(r.Context(), "Rate limit exceeded", "key", key, "path", r.URL.Path)
					w.Header().Set("Retry-After", "60")
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Allow takes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		limit := rate.Every(time.Minute / time.Duration(rl.config.PerMinute))
		v = &visitor{limiter: rate.NewLimiter(limit, rl.config.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Prune drops buckets idle for longer than the idle TTL.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idleTTL)
	for k, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, k)
		}
	}
}

// Run prunes idle buckets every interval until stop is closed.
func (rl *RateLimiter) Run(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			rl.Prune()
		case <-stop:
			return
		}
	}
}

// IPKeyFunc limits by client IP.
func IPKeyFunc(r *http.Request) []string {
	if ip := getClientIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

// getClientIP extracts the real client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP if there are multiple
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
