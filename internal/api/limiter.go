package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per user id.
type userLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	entries map[string]*limiterEntry
	idle    time.Duration
}

func newUserLimiter(perSec float64, burst int) *userLimiter {
	if perSec <= 0 {
		perSec = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &userLimiter{
		perSec:  rate.Limit(perSec),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		idle:    10 * time.Minute,
	}
}

func (l *userLimiter) allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	e, ok := l.entries[userID]
	if !ok {
		if len(l.entries) > 1024 {
			l.evictLocked(now)
		}
		e = &limiterEntry{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.entries[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *userLimiter) evictLocked(now time.Time) {
	for id, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.entries, id)
		}
	}
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(userFromContext(r.Context())) {
			w.Header().Set("Retry-After", "1")
			writeCodedError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
