package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ssd-technologies/spawner/internal/ratelimit"
)

// rateLimiter keeps one fixed-window limiter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*ratelimit.Limiter
	rate     int           // max requests per window
	window   time.Duration // window duration
}

// newRateLimiter creates a rate limiter that allows rate requests per window
// per IP. Idle entries are dropped by cleanup, which StartWorkers runs.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*ratelimit.Limiter),
		rate:     rate,
		window:   window,
	}
}

// allow returns true if the IP has not exceeded its rate limit.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	l, ok := rl.visitors[ip]
	if !ok {
		l = ratelimit.New(rl.rate, rl.window)
		rl.visitors[ip] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

// cleanup removes visitors whose window has expired and reports how many.
func (rl *rateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for ip, l := range rl.visitors {
		if l.Expired() {
			delete(rl.visitors, ip)
			n++
		}
	}
	return n
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// getIP extracts the client IP from a request, respecting X-Forwarded-For
// for proxied deployments.
func getIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
