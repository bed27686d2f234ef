package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// RateLimiter is a fixed-window counter keyed per caller. Authenticated
// callers are keyed by token, anonymous ones by client IP.
type RateLimiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewRateLimiter(limit int, per time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, per: per, now: time.Now, buckets: make(map[string]*bucket)}
}

// Allow records a hit for key and reports whether it fits the window, plus
// the time left until the window resets.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.After(b.until) {
		b = &bucket{until: now.Add(l.per)}
		l.buckets[key] = b
		if len(l.buckets) > 4096 {
			l.sweep(now)
		}
	}
	if b.count >= l.limit {
		return false, b.until.Sub(now)
	}
	b.count++
	return true, 0
}

func (l *RateLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.After(b.until) {
			delete(l.buckets, k)
		}
	}
}

// Middleware enforces the limit. A non-positive limit disables it.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := l.Allow(rateLimitKey(r))
		if !ok {
			secs := int(retry.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit keeps the function form for routers that take plain middleware.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	return NewRateLimiter(limit, per).Middleware
}

func rateLimitKey(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok && p.TokenID > 0 {
		return "token:" + strconv.FormatInt(p.TokenID, 10)
	}
	return "ip:" + clientIPForRateLimit(r)
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
