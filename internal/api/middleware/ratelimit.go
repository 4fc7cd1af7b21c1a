package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/castellan/forge-api/internal/api/shared"
)

// RateLimiter enforces a per-IP sliding window on the routes it wraps. It
// is meant for the producer endpoints, which are cheap to call but expensive
// to serve.
type RateLimiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	buckets map[string][]time.Time

	now func() time.Time
}

// NewRateLimiter allows max requests per source IP within window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:     max,
		window:  window,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one request for ip and reports whether it is within the
// limit.
func (l *RateLimiter) Allow(ip string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.buckets[ip]
	live := bucket[:0]
	for _, t := range bucket {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	if len(live) >= l.max {
		l.buckets[ip] = live
		return false
	}
	l.buckets[ip] = append(live, now)
	return true
}

// Handler wraps next with the limit, answering 429 when exceeded.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			shared.RespondWithError(w, r, http.StatusTooManyRequests,
				"Rate limit exceeded. Try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
